package enums

// CouponType selects how a coupon discount is computed.
type CouponType string

const (
	CouponTypeFixed   CouponType = "fixed"
	CouponTypePercent CouponType = "percent"
)

func (c CouponType) IsValid() bool {
	return c == CouponTypeFixed || c == CouponTypePercent
}
