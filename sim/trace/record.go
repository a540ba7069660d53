// Package trace provides decision-trace recording for dialer, agents-move and
// stopping decisions.
// This package has no dependencies on sim/ or its subpackages; it stores pure data types.
package trace

// DialRecord captures a single dialer policy decision for one outbound type.
type DialRecord struct {
	Replication  int
	Clock        int64
	CallType     int
	Policy       string
	TotalFree    int // Ntf
	TargetFree   int // Ndf_k
	BadCallRate  float64
	MismatchRate float64
	Dialed       int
}

// FlagRecord captures one agents-move controller update at a checked-period close.
type FlagRecord struct {
	Replication       int
	Clock             int64
	ServiceLevel      float64 // sample of the period just closed
	WindowMean        float64
	OutboundToInbound bool
	InboundToOutbound bool
	Changed           bool
}

// StopRecord captures one stopping-condition check.
type StopRecord struct {
	Step      int
	Lower     float64
	Upper     float64
	Threshold float64
	NewReps   int
	Reason    string
}
