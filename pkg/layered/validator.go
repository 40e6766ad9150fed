// ABOUTME: Per-layer RTP sequence validator
// ABOUTME: Probation, wrap, jump detection, loss and interarrival jitter accounting
package layered

import "time"

const (
	MinSequential = 2
	MaxDropout    = 3000
	MaxMisorder   = 100
	SeqMod        = 1 << 16
)

// SeqResult classifies one sequence number
type SeqResult int

const (
	Valid SeqResult = iota
	Jumped
	Probation
	DuplicatePacket
	InvalidSeqNum
)

func (r SeqResult) String() string {
	switch r {
	case Valid:
		return "valid"
	case Jumped:
		return "jumped"
	case Probation:
		return "probation"
	case DuplicatePacket:
		return "duplicate"
	case InvalidSeqNum:
		return "invalid"
	}
	return "unknown"
}

// Accepted reports results whose packet should be admitted
func (r SeqResult) Accepted() bool { return r == Valid || r == Jumped }

// ValidatorState is a snapshot of the counters
type ValidatorState struct {
	Initialized   bool
	Cycles        uint32
	BaseSeq       uint32
	MaxSeq        uint16
	BadSeq        uint32
	Probation     int
	Received      uint32
	ExpectedPrior uint32
	ReceivedPrior uint32
	Transit       int64
	Jitter        float64
}

// SequenceValidator tracks one RTP stream. It is not safe for concurrent use.
type SequenceValidator struct {
	st          ValidatorState
	haveTransit bool
	clock       Clock
	epoch       time.Time
	clockRate   int
}

// NewSequenceValidator creates a validator measuring arrivals with clock at clockRate ticks per second
func NewSequenceValidator(clock Clock, clockRate int) *SequenceValidator {
	if clock == nil {
		clock = MonotonicClock{}
	}
	if clockRate <= 0 {
		clockRate = TimestampClockRate
	}
	return &SequenceValidator{clock: clock, clockRate: clockRate, epoch: clock.Now()}
}

func (v *SequenceValidator) initSeq(seq uint16) {
	v.st.BaseSeq = uint32(seq)
	v.st.MaxSeq = seq
	v.st.BadSeq = SeqMod + 1
	v.st.Cycles = 0
	v.st.Received = 0
	v.st.ReceivedPrior = 0
	v.st.ExpectedPrior = 0
	v.haveTransit = false
}

// Validate classifies seq without jitter accounting
func (v *SequenceValidator) Validate(seq uint16) SeqResult {
	if !v.st.Initialized {
		v.initSeq(seq)
		v.st.MaxSeq = seq - 1
		v.st.Probation = MinSequential
		v.st.Initialized = true
	}

	if v.st.Probation > 0 {
		if seq == v.st.MaxSeq+1 {
			v.st.Probation--
			v.st.MaxSeq = seq
			if v.st.Probation == 0 {
				v.initSeq(seq)
				v.st.Received++
				return Valid
			}
		} else {
			// this packet becomes the first of a new run
			v.st.Probation = MinSequential - 1
			v.st.MaxSeq = seq
		}
		return Probation
	}

	udelta := seq - v.st.MaxSeq
	switch {
	case udelta == 0:
		return DuplicatePacket
	case udelta < MaxDropout:
		if seq < v.st.MaxSeq {
			v.st.Cycles += SeqMod
		}
		v.st.MaxSeq = seq
	case int(udelta) <= SeqMod-MaxMisorder:
		// a large jump is believed once the sender keeps going from it
		if uint32(seq) == v.st.BadSeq || uint32(seq)+1 == v.st.BadSeq {
			v.initSeq(seq)
			v.st.Received++
			return Jumped
		}
		v.st.BadSeq = uint32(seq+1) & (SeqMod - 1)
		return InvalidSeqNum
	default:
		// late or reordered within tolerance
	}
	v.st.Received++
	return Valid
}

// ValidateTimestamped classifies seq and, when accepted, updates jitter from
// the RTP timestamp and the arrival time
func (v *SequenceValidator) ValidateTimestamped(seq uint16, timestamp uint32) SeqResult {
	res := v.Validate(seq)
	if res.Accepted() {
		v.updateJitter(timestamp)
	}
	return res
}

// Prime marks seq as an accepted first packet, skipping probation
func (v *SequenceValidator) Prime(seq uint16, timestamp uint32) {
	v.initSeq(seq)
	v.st.Initialized = true
	v.st.Probation = 0
	v.st.Received = 1
	v.updateJitter(timestamp)
}

func (v *SequenceValidator) updateJitter(timestamp uint32) {
	arrival := int64(v.clock.Now().Sub(v.epoch)/time.Microsecond) * int64(v.clockRate) / 1_000_000
	transit := arrival - int64(timestamp)
	if v.haveTransit {
		d := transit - v.st.Transit
		if d < 0 {
			d = -d
		}
		v.st.Jitter += (float64(d) - v.st.Jitter) / 16
	}
	v.st.Transit = transit
	v.haveTransit = true
}

// Reset returns the validator to its uninitialized state
func (v *SequenceValidator) Reset() {
	v.st = ValidatorState{}
	v.haveTransit = false
}

// State returns a snapshot of the counters
func (v *SequenceValidator) State() ValidatorState { return v.st }

// Ready reports whether probation has completed
func (v *SequenceValidator) Ready() bool {
	return v.st.Initialized && v.st.Probation == 0
}

// ExtendedHighest is the highest sequence number including wrap cycles
func (v *SequenceValidator) ExtendedHighest() uint32 {
	return v.st.Cycles + uint32(v.st.MaxSeq)
}

func (v *SequenceValidator) expected() uint32 {
	return v.ExtendedHighest() - v.st.BaseSeq + 1
}

// Received is the count of accepted packets since the last (re)initialization
func (v *SequenceValidator) Received() uint32 { return v.st.Received }

// CumulativeLost is expected minus received, negative when duplicates were counted
func (v *SequenceValidator) CumulativeLost() int32 {
	if !v.Ready() {
		return 0
	}
	return int32(v.expected() - v.st.Received)
}

// CalculateFractionLost returns loss since the previous call as a fraction of 256
func (v *SequenceValidator) CalculateFractionLost() uint8 {
	if !v.Ready() {
		return 0
	}
	expected := v.expected()
	expectedInterval := expected - v.st.ExpectedPrior
	v.st.ExpectedPrior = expected

	receivedInterval := v.st.Received - v.st.ReceivedPrior
	v.st.ReceivedPrior = v.st.Received

	lostInterval := int64(expectedInterval) - int64(receivedInterval)
	if expectedInterval == 0 || lostInterval <= 0 {
		return 0
	}
	return uint8((lostInterval << 8) / int64(expectedInterval))
}

// Jitter is the interarrival jitter estimate in timestamp units
func (v *SequenceValidator) Jitter() uint32 { return uint32(v.st.Jitter) }
