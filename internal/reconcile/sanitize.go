package reconcile

import "github.com/dextop-world/dextop/pkg/wire"

// Sanitizer removes per-user program windows from desktop snapshots.
type Sanitizer struct {
	private map[wire.ProgramType]struct{}
}

// NewSanitizer builds a sanitizer for the given private program types.
func NewSanitizer(privateTypes []string) *Sanitizer {
	s := &Sanitizer{private: make(map[wire.ProgramType]struct{}, len(privateTypes))}
	for _, t := range privateTypes {
		if t == "" {
			continue
		}
		s.private[wire.ProgramType(t)] = struct{}{}
	}
	return s
}

// IsPrivate reports whether windows of the type stay local-only.
func (s *Sanitizer) IsPrivate(t wire.ProgramType) bool {
	_, ok := s.private[t]
	return ok
}

// Sanitize returns a deep copy of snap without private windows.
func (s *Sanitizer) Sanitize(snap wire.DesktopSnapshot) wire.DesktopSnapshot {
	out := snap.Clone()
	for id, w := range out.Programs {
		if s.IsPrivate(w.Type) {
			delete(out.Programs, id)
		}
	}
	return out
}

// ApplyRemote replaces local with a sanitized copy of remote while keeping
// the private windows local already had. Private windows found in remote are
// dropped: they belong to another player.
func (s *Sanitizer) ApplyRemote(local, remote wire.DesktopSnapshot) wire.DesktopSnapshot {
	out := s.Sanitize(remote)
	for id, w := range local.Programs {
		if !s.IsPrivate(w.Type) {
			continue
		}
		out.Programs[id] = w
		if w.ZIndex > out.HighestZIndex {
			out.HighestZIndex = w.ZIndex
		}
	}
	return out
}
