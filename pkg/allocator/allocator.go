package allocator

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"colorcam/pkg/utils"
)

var (
	ErrAllocation = errors.New("allocation failed")
	ErrZeroSize   = fmt.Errorf("%w: zero size", ErrAllocation)
	ErrLimit      = fmt.Errorf("%w: limit reached", ErrAllocation)
)

// Source is the part of the SDK a buffer was allocated for.
type Source int

const (
	SourceUser Source = iota
	SourceDepth
	SourceColor
	SourceIMU
	SourceUSBDepth
	SourceUSBIMU

	sourceCount
)

var sourceNames = [sourceCount]string{"user", "depth", "color", "imu", "usb_depth", "usb_imu"}

func (s Source) String() string {
	if s < 0 || s >= sourceCount {
		return "invalid"
	}
	return sourceNames[s]
}

// Context travels with a buffer from Alloc to Free.
type Context struct {
	source Source
	size   int
	freed  atomic.Bool
}

func (c *Context) Source() Source {
	return c.source
}

// Allocator hands out frame buffers and counts what is still outstanding,
// per source, so leaks can be reported when the last session closes.
type Allocator struct {
	limit uint64

	outstanding [sourceCount]atomic.Int64
	bytes       atomic.Int64
	sessions    atomic.Int64

	logger *zap.SugaredLogger
}

// New returns an allocator. A zero limit means no limit on outstanding bytes.
func New(limit uint64) *Allocator {
	return &Allocator{limit: limit, logger: utils.GetLogger()}
}

var Default = New(0)

func (a *Allocator) Initialize() {
	a.sessions.Add(1)
}

func (a *Allocator) Deinitialize() {
	a.sessions.Add(-1)
}

// Alloc allocates size bytes on behalf of source.
func (a *Allocator) Alloc(source Source, size int) ([]byte, *Context, error) {
	if source < 0 || source >= sourceCount {
		return nil, nil, fmt.Errorf("%w: invalid source %d", ErrAllocation, source)
	}
	if size <= 0 {
		return nil, nil, ErrZeroSize
	}
	total := a.bytes.Add(int64(size))
	if a.limit > 0 && uint64(total) > a.limit {
		a.bytes.Add(-int64(size))
		return nil, nil, fmt.Errorf("%w: %s outstanding, %s requested", ErrLimit,
			humanize.IBytes(uint64(total)-uint64(size)), humanize.IBytes(uint64(size)))
	}
	a.outstanding[source].Add(1)

	return make([]byte, size), &Context{source: source, size: size}, nil
}

// Free returns a buffer. Freeing the same context twice is ignored.
func (a *Allocator) Free(buf []byte, ctx *Context) {
	if buf == nil || ctx == nil {
		return
	}
	if !ctx.freed.CompareAndSwap(false, true) {
		a.logger.Warnf("allocator: double free of %s buffer ignored", ctx.source)
		return
	}
	a.outstanding[ctx.source].Add(-1)
	a.bytes.Add(-int64(ctx.size))
}

// Outstanding reports the number of live buffers for source.
func (a *Allocator) Outstanding(source Source) int64 {
	if source < 0 || source >= sourceCount {
		return 0
	}
	return a.outstanding[source].Load()
}

// OutstandingBytes reports the bytes held by live buffers of every source.
func (a *Allocator) OutstandingBytes() int64 {
	return a.bytes.Load()
}

// TestForLeaks returns the number of live buffers. While sessions are
// still open buffers are expected to be live, and 0 is returned.
func (a *Allocator) TestForLeaks() int64 {
	if a.sessions.Load() != 0 {
		return 0
	}
	var total int64
	for s := Source(0); s < sourceCount; s++ {
		total += a.outstanding[s].Load()
	}
	if total != 0 {
		a.logger.Errorf("allocator: leaked user:%d color:%d depth:%d imu:%d usb depth:%d usb imu:%d (%s)",
			a.Outstanding(SourceUser), a.Outstanding(SourceColor), a.Outstanding(SourceDepth),
			a.Outstanding(SourceIMU), a.Outstanding(SourceUSBDepth), a.Outstanding(SourceUSBIMU),
			humanize.IBytes(uint64(a.bytes.Load())))
	}
	return total
}

// ForSource binds the allocator to a single source.
func (a *Allocator) ForSource(source Source) *SourceAllocator {
	return &SourceAllocator{a: a, source: source}
}

// SourceAllocator allocates on behalf of one source. It satisfies
// camera.Allocator.
type SourceAllocator struct {
	a      *Allocator
	source Source
}

func (s *SourceAllocator) Alloc(size int) ([]byte, any, error) {
	buf, ctx, err := s.a.Alloc(s.source, size)
	if err != nil {
		return nil, nil, err
	}
	return buf, ctx, nil
}

func (s *SourceAllocator) Free(buf []byte, ctx any) {
	c, ok := ctx.(*Context)
	if !ok {
		s.a.logger.Warnf("allocator: free with foreign context %T", ctx)
		return
	}
	s.a.Free(buf, c)
}
