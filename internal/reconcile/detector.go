package reconcile

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/dextop-world/dextop/pkg/wire"
)

// ChangeDetector decides whether next differs from prev in a way that must
// be broadcast.
type ChangeDetector[T any] interface {
	HasChanged(prev, next T) bool
}

// DetectorFunc adapts a function to ChangeDetector.
type DetectorFunc[T any] func(prev, next T) bool

func (f DetectorFunc[T]) HasChanged(prev, next T) bool { return f(prev, next) }

// encMode uses Core Deterministic Encoding (sorted map keys, shortest
// integers) so equal values always produce identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("reconcile: CBOR encoder initialization failed: " + err.Error())
	}
}

// Digest is the blake3 hash of a value's deterministic CBOR encoding.
type Digest [32]byte

// DigestOf returns the digest of v.
func DigestOf(v any) (Digest, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return Digest{}, err
	}
	return blake3.Sum256(data), nil
}

// SerializedDetector compares whole values by their serialized form. Values
// that fail to encode are always reported as changed.
type SerializedDetector[T any] struct{}

func (SerializedDetector[T]) HasChanged(prev, next T) bool {
	a, err := DigestOf(prev)
	if err != nil {
		return true
	}
	b, err := DigestOf(next)
	if err != nil {
		return true
	}
	return a != b
}

// Projected compares only a projection of T.
type Projected[T, P any] struct {
	Project func(T) P
	Inner   ChangeDetector[P]
}

func (p Projected[T, P]) HasChanged(prev, next T) bool {
	return p.Inner.HasChanged(p.Project(prev), p.Project(next))
}

// PlayerFingerprint is the gaming and cosmetic subset of PlayerState sent on
// the occasional state channel.
type PlayerFingerprint struct {
	IsSitting            bool
	IsGaming             bool
	GamingInputDirection string
	Vehicle              string
	SpeedMultiplier      float64
	CurrentItemIDs       []string
	CurrentTitleID       string
	EquippedItems        []byte
	EquippedTitle        []byte
}

// Fingerprint projects s onto its state-channel fields.
func Fingerprint(s wire.PlayerState) PlayerFingerprint {
	return PlayerFingerprint{
		IsSitting:            s.IsSitting,
		IsGaming:             s.IsGaming,
		GamingInputDirection: s.GamingInputDirection,
		Vehicle:              s.Vehicle,
		SpeedMultiplier:      s.SpeedMultiplier,
		CurrentItemIDs:       s.CurrentItemIDs,
		CurrentTitleID:       s.CurrentTitleID,
		EquippedItems:        s.EquippedItems,
		EquippedTitle:        s.EquippedTitle,
	}
}

// Movement is the subset of PlayerState sent on the continuous movement
// channel.
type Movement struct {
	Position          wire.Position
	IsMoving          bool
	MovementDirection string
	WalkFrame         int
	FacingDirection   string
	IsGrabbing        bool
	IsResizing        bool
}

// MovementOf projects s onto its movement-channel fields.
func MovementOf(s wire.PlayerState) Movement {
	return Movement{
		Position:          s.Position,
		IsMoving:          s.IsMoving,
		MovementDirection: s.MovementDirection,
		WalkFrame:         s.WalkFrame,
		FacingDirection:   s.FacingDirection,
		IsGrabbing:        s.IsGrabbing,
		IsResizing:        s.IsResizing,
	}
}

// NewFingerprintDetector compares player states by their fingerprint only.
func NewFingerprintDetector() ChangeDetector[wire.PlayerState] {
	return Projected[wire.PlayerState, PlayerFingerprint]{
		Project: Fingerprint,
		Inner:   SerializedDetector[PlayerFingerprint]{},
	}
}

// NewMovementDetector compares player states by their movement fields only.
func NewMovementDetector() ChangeDetector[wire.PlayerState] {
	return Projected[wire.PlayerState, Movement]{
		Project: MovementOf,
		Inner: DetectorFunc[Movement](func(prev, next Movement) bool {
			return prev.Position != next.Position || prev.IsMoving != next.IsMoving ||
				prev.MovementDirection != next.MovementDirection || prev.WalkFrame != next.WalkFrame ||
				prev.FacingDirection != next.FacingDirection || prev.IsGrabbing != next.IsGrabbing ||
				prev.IsResizing != next.IsResizing
		}),
	}
}
