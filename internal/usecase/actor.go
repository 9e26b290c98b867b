package usecase

const (
	RoleAdmin    = "admin"
	RoleVendor   = "vendor"
	RoleCustomer = "customer"
)

// 操作した人（JWTのsubとrole）
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// adminは全部、vendorは自分の商品だけ
func (a Actor) CanManage(vendorID string) bool {
	if a.IsAdmin() {
		return true
	}
	return a.Role == RoleVendor && a.ID != "" && a.ID == vendorID
}
