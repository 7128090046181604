package motion

// BlockType identifies what a queued block asks the executor to do.
type BlockType uint8

const (
	BlockRapid BlockType = iota
	BlockFeed
	BlockDwell
	BlockHold
	BlockResume
	BlockEnd
)

// IsMotion reports whether the block moves any axis.
func (t BlockType) IsMotion() bool {
	return t == BlockRapid || t == BlockFeed
}

// IsControl reports whether the block is a hold/resume/end marker.
func (t BlockType) IsControl() bool {
	return t == BlockHold || t == BlockResume || t == BlockEnd
}

// Block is a planned motion primitive in the planner queue.
//
// Velocities are tracked in mm/s.  The planner maintains
// EntryV <= CruiseV <= FeedCap and ExitV <= CruiseV.  Once Busy is set by
// the executor the planner may read the block but only lower ExitV.
type Block struct {
	Type BlockType

	Unit     Vec     // unit vector of travel
	Steps    Steps   // signed per-axis step counts
	LengthMM float64 // geometric distance

	EntryV  float64 // speed at block start
	CruiseV float64 // ceiling for the peak speed within the block
	ExitV   float64 // speed at block end
	FeedCap float64 // requested feed after axis clamping

	Accel float64 // mm/s^2 bound for this move
	Jerk  float64 // mm/s^3 bound for this move

	// MaxJunctionV2 caps the squared velocity shared with the previous
	// block, derived from the corner angle and junction deviation.
	MaxJunctionV2 float64

	DwellTicks uint32 // BlockDwell: lifetime in timer ticks

	Finalized bool // entry/exit guaranteed not to decrease further
	Busy      bool // executor has taken the block
}
