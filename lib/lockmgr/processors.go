package lockmgr

import (
	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/processor"
)

func init() {
	processor.Register(KindAcquire, func() processor.EntryProcessor { return &Acquire{} })
	processor.Register(KindRelease, func() processor.EntryProcessor { return &Release{} })
}

// Lock processor kinds
const (
	KindAcquire = "lock-acquire"
	KindRelease = "lock-release"
)

// lock is the stored value of a held lock
type lock struct {
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expiresAt,omitempty"` // unix millis, 0 = never
}

func (l lock) expired(now int64) bool { return l.ExpiresAt != 0 && l.ExpiresAt <= now }

func (l lock) document() any {
	return doc.MustNormalize(l)
}

// Acquire takes the lock if it is free, expired or already held by Owner.
// The clock is an argument so that replicas applying it agree.
type Acquire struct {
	Owner     string `json:"owner"`
	Now       int64  `json:"now"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

func (p *Acquire) Kind() string { return KindAcquire }

func (p *Acquire) Process(e processor.MutableEntry) (any, error) {
	if e.Present() {
		cur, err := doc.As[lock](e.Value())
		if err == nil && cur.Owner != p.Owner && !cur.expired(p.Now) {
			return false, nil
		}
	}
	e.SetValue(lock{Owner: p.Owner, ExpiresAt: p.ExpiresAt}.document())
	return true, nil
}

// Release removes the lock if Owner holds it. A missing lock counts as
// released.
type Release struct {
	Owner string `json:"owner"`
}

func (p *Release) Kind() string { return KindRelease }

func (p *Release) Process(e processor.MutableEntry) (any, error) {
	if !e.Present() {
		return true, nil
	}
	cur, err := doc.As[lock](e.Value())
	if err != nil || cur.Owner != p.Owner {
		return false, nil
	}
	e.Remove()
	return true, nil
}
