package cursor

import "time"

// document is the on-disk shape accepted by JSONStore. It is a superset of
// State that also understands the older tracker layout:
//
//	{"last_upload_time": 1700000000, "uploaded_items": [{"filename": ..., "creation_time": ..., "upload_time": ...}]}
type document struct {
	Watermark    *int64    `json:"watermark"`
	ProcessedLog []Entry   `json:"processed_log"`
	UpdatedAt    time.Time `json:"updated_at"`

	LastUploadTime *float64     `json:"last_upload_time"`
	UploadedItems  []legacyItem `json:"uploaded_items"`
}

type legacyItem struct {
	Filename     string  `json:"filename"`
	ClipName     string  `json:"clip_name"`
	CreationTime float64 `json:"creation_time"`
	UploadTime   string  `json:"upload_time"`
}

// legacyTimeLayouts covers ISO-8601 timestamps without a zone, with and
// without fractional seconds.
var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

func (d *document) state() *State {
	st := &State{UpdatedAt: d.UpdatedAt}

	if d.Watermark != nil {
		st.Watermark = *d.Watermark
	} else if d.LastUploadTime != nil {
		st.Watermark = int64(*d.LastUploadTime)
	}

	st.ProcessedLog = append(st.ProcessedLog, d.ProcessedLog...)
	if len(d.ProcessedLog) == 0 {
		for _, item := range d.UploadedItems {
			st.ProcessedLog = append(st.ProcessedLog, item.entry())
		}
	}
	return st
}

func (i legacyItem) entry() Entry {
	identity := i.Filename
	if identity == "" {
		identity = i.ClipName
	}
	e := Entry{Identity: identity, CaptureTime: int64(i.CreationTime)}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, i.UploadTime, time.Local); err == nil {
			e.ProcessedAt = t
			break
		}
	}
	return e
}
