package model

// MediaHandle describes a piece of media known to the worker. Before upload it
// points to a local file, after upload ID and URL are assigned by the remote store.
type MediaHandle struct {
	ID       int64  `json:"id,omitempty"`
	PostID   int64  `json:"post_id,omitempty"` // product the media is attached to
	LocalRef string `json:"local_ref,omitempty"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type Image struct {
	ID   int64  `json:"id" yaml:"id"`
	Src  string `json:"src" yaml:"src"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

func ImageFromMedia(m MediaHandle) Image {
	return Image{
		ID:   m.ID,
		Src:  m.URL,
		Name: m.FileName,
	}
}

type Product struct {
	ID     int64   `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Images []Image `json:"images" yaml:"images"`
}

// WithImages returns a copy of p whose image list is extended by the added
// media. p itself is not modified.
func (p Product) WithImages(added ...MediaHandle) Product {
	images := make([]Image, 0, len(p.Images)+len(added))
	images = append(images, p.Images...)
	for _, m := range added {
		images = append(images, ImageFromMedia(m))
	}
	p.Images = images
	return p
}

// UploadOutcome is a single element of the stream produced by a MediaUploader.
// The stream ends after UploadFailure or UploadSuccess.
type UploadOutcome interface {
	uploadOutcome()
}

type UploadFailure struct {
	Err error
}

type UploadProgress struct {
	Fraction float64 // 0.0 .. 1.0
}

type UploadSuccess struct {
	Media MediaHandle
}

func (UploadFailure) uploadOutcome()  {}
func (UploadProgress) uploadOutcome() {}
func (UploadSuccess) uploadOutcome()  {}

// MediaUploadEntry is a line of the upload progress ledger.
type MediaUploadEntry struct {
	ProductID int64
	LocalRef  string
	Done      bool
}
