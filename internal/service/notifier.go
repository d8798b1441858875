package service

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

// WriteNotifier renders worker progress as plain text lines. Upload progress
// is printed in steps of 10%.
type WriteNotifier struct {
	mx   sync.Mutex
	w    io.Writer
	step int
}

func NewWriteNotifier(w io.Writer) *WriteNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &WriteNotifier{w: w, step: -1}
}

func (n *WriteNotifier) Update(current, total int) {
	n.mx.Lock()
	defer n.mx.Unlock()
	n.step = -1
	n.printf("uploading %d of %d\n", current, total)
}

func (n *WriteNotifier) SetProgress(fraction float64) {
	n.mx.Lock()
	defer n.mx.Unlock()
	step := int(math.Floor(fraction * 10))
	if step <= n.step {
		return
	}
	n.step = step
	n.printf("  %3d%%\n", step*10)
}

func (n *WriteNotifier) ShowUpdatingProduct(p *model.Product) {
	n.mx.Lock()
	defer n.mx.Unlock()
	if p == nil {
		n.printf("updating product\n")
		return
	}
	n.printf("updating product %d %q (%d images)\n", p.ID, p.Name, len(p.Images))
}

func (n *WriteNotifier) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(n.w, format, args...)
}
