package model

// Event is reported by the worker to its subscribers. Every event carries the
// product it belongs to, except ServiceStopped which reports product 0.
type Event interface {
	Product() int64
	event()
}

// MediaUploadEvent is the fetch/upload subset of events.
type MediaUploadEvent interface {
	Event
	Ref() string
	mediaUploadEvent()
}

// ProductUpdateEvent is the product update subset of events.
type ProductUpdateEvent interface {
	Event
	productUpdateEvent()
}

type ProductUploadsCompleted struct {
	ProductID int64
}

type ServiceStopped struct{}

type FetchSucceeded struct {
	ProductID int64
	LocalRef  string
	Media     MediaHandle
}

type FetchFailed struct {
	ProductID int64
	LocalRef  string
}

type UploadSucceeded struct {
	ProductID int64
	LocalRef  string
	Media     MediaHandle
}

type UploadFailed struct {
	ProductID int64
	LocalRef  string
	Err       error
}

type ProductUpdateSucceeded struct {
	ProductID   int64
	Product     Product
	ImagesCount int
}

type ProductUpdateFailed struct {
	ProductID int64
	Product   *Product // nil when the product could not be read at all
}

func (e ProductUploadsCompleted) Product() int64 { return e.ProductID }
func (ServiceStopped) Product() int64            { return 0 }
func (e FetchSucceeded) Product() int64          { return e.ProductID }
func (e FetchFailed) Product() int64             { return e.ProductID }
func (e UploadSucceeded) Product() int64         { return e.ProductID }
func (e UploadFailed) Product() int64            { return e.ProductID }
func (e ProductUpdateSucceeded) Product() int64  { return e.ProductID }
func (e ProductUpdateFailed) Product() int64     { return e.ProductID }

func (ProductUploadsCompleted) event() {}
func (ServiceStopped) event()          {}
func (FetchSucceeded) event()          {}
func (FetchFailed) event()             {}
func (UploadSucceeded) event()         {}
func (UploadFailed) event()            {}
func (ProductUpdateSucceeded) event()  {}
func (ProductUpdateFailed) event()     {}

func (e FetchSucceeded) Ref() string  { return e.LocalRef }
func (e FetchFailed) Ref() string     { return e.LocalRef }
func (e UploadSucceeded) Ref() string { return e.LocalRef }
func (e UploadFailed) Ref() string    { return e.LocalRef }

func (FetchSucceeded) mediaUploadEvent()  {}
func (FetchFailed) mediaUploadEvent()     {}
func (UploadSucceeded) mediaUploadEvent() {}
func (UploadFailed) mediaUploadEvent()    {}

func (ProductUpdateSucceeded) productUpdateEvent() {}
func (ProductUpdateFailed) productUpdateEvent()    {}

// IsTerminal reports whether no further media event is expected for the
// (product, local ref) pair after e.
func IsTerminal(e MediaUploadEvent) bool {
	switch e.(type) {
	case FetchFailed, UploadSucceeded, UploadFailed:
		return true
	default:
		return false
	}
}
