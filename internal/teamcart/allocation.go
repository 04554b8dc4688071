package teamcart

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/config"
)

// Contributor is a member who added at least one item.
type Contributor struct {
	MemberID uuid.UUID
	Subtotal int64
	JoinedAt time.Time
	IsHost   bool
}

// AllocationInput is everything a strategy needs, in minor units.
type AllocationInput struct {
	Contributors []Contributor
	Subtotal     int64
	Discount     int64
	Tax          int64
	DeliveryFee  int64
	Tip          int64
}

// GrandTotal is subtotal - discount + tax + delivery fee + tip.
func (in AllocationInput) GrandTotal() int64 {
	return in.Subtotal - in.Discount + in.Tax + in.DeliveryFee + in.Tip
}

func (in AllocationInput) validate() error {
	if len(in.Contributors) == 0 {
		return fmt.Errorf("allocation requires at least one contributor")
	}
	if in.Subtotal < 0 || in.Discount < 0 || in.Tax < 0 || in.DeliveryFee < 0 || in.Tip < 0 {
		return fmt.Errorf("allocation amounts must not be negative")
	}
	if in.Discount > in.Subtotal {
		return fmt.Errorf("discount %d exceeds subtotal %d", in.Discount, in.Subtotal)
	}
	var sum int64
	for _, c := range in.Contributors {
		if c.Subtotal < 0 {
			return fmt.Errorf("member %s has a negative subtotal", c.MemberID)
		}
		sum += c.Subtotal
	}
	if sum != in.Subtotal {
		return fmt.Errorf("member subtotals sum to %d, expected %d", sum, in.Subtotal)
	}
	return nil
}

// Share is one member's owed amount.
type Share struct {
	MemberID uuid.UUID
	Amount   int64
}

// AllocationStrategy splits a grand total across contributors. Results
// always sum to the grand total exactly.
type AllocationStrategy interface {
	Name() string
	Allocate(in AllocationInput) ([]Share, error)
}

// StrategyFor resolves the configured strategy name.
func StrategyFor(name string) (AllocationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", config.AllocationProportional:
		return ProportionalStrategy{}, nil
	case config.AllocationEqualBase:
		return EqualBaseStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown allocation strategy %q", name)
	}
}

// ProportionalStrategy charges each contributor grandTotal × memberSubtotal / subtotal.
type ProportionalStrategy struct{}

func (ProportionalStrategy) Name() string { return config.AllocationProportional }

func (ProportionalStrategy) Allocate(in AllocationInput) ([]Share, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	contributors := orderContributors(in.Contributors)
	grand := in.GrandTotal()
	shares := make([]Share, len(contributors))
	for i, c := range contributors {
		shares[i] = Share{MemberID: c.MemberID, Amount: mulDiv(grand, c.Subtotal, in.Subtotal)}
	}
	return settleResidual(contributors, shares, grand), nil
}

// EqualBaseStrategy splits the pre-tip total equally and the tip
// proportionally to each member's subtotal.
type EqualBaseStrategy struct{}

func (EqualBaseStrategy) Name() string { return config.AllocationEqualBase }

func (EqualBaseStrategy) Allocate(in AllocationInput) ([]Share, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	contributors := orderContributors(in.Contributors)
	base := in.Subtotal - in.Discount + in.Tax + in.DeliveryFee
	perMember := base / int64(len(contributors))
	shares := make([]Share, len(contributors))
	for i, c := range contributors {
		shares[i] = Share{MemberID: c.MemberID, Amount: perMember + mulDiv(in.Tip, c.Subtotal, in.Subtotal)}
	}
	return settleResidual(contributors, shares, in.GrandTotal()), nil
}

// orderContributors sorts by join time so residual assignment is deterministic.
func orderContributors(in []Contributor) []Contributor {
	out := append([]Contributor(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].MemberID.String() < out[j].MemberID.String()
	})
	return out
}

// settleResidual hands the rounding remainder to the host when the host
// contributed, otherwise to the earliest-joined contributor.
func settleResidual(contributors []Contributor, shares []Share, grand int64) []Share {
	var allocated int64
	for _, s := range shares {
		allocated += s.Amount
	}
	residual := grand - allocated
	if residual == 0 {
		return shares
	}
	recipient := 0
	for i, c := range contributors {
		if c.IsHost {
			recipient = i
			break
		}
	}
	shares[recipient].Amount += residual
	return shares
}

// mulDiv returns floor(a*b/c) for non-negative operands with b <= c.
func mulDiv(a, b, c int64) int64 {
	if a <= 0 || b <= 0 || c <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}
