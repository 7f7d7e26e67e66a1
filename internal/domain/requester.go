package domain

// Role определяет права запрашивающего.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Requester: тот, от чьего имени выполняется операция.
// Для гостей заполнен только SessionID.
type Requester struct {
	UserID    string
	SessionID string
	Role      Role
}

// IsAdmin сообщает, что у запрашивающего есть права администратора.
func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// Authenticated сообщает, что запрашивающий вошёл в систему.
func (r Requester) Authenticated() bool {
	return r.UserID != ""
}

// Actor возвращает идентификатор для журналов аудита.
func (r Requester) Actor() string {
	switch {
	case r.UserID != "":
		return r.UserID
	case r.SessionID != "":
		return "session:" + r.SessionID
	default:
		return "system"
	}
}

// Owner определяет владельца корзины: пользователь имеет приоритет над сессией.
func (r Requester) Owner() CartOwner {
	if r.UserID != "" {
		return CartOwner{UserID: r.UserID}
	}
	return CartOwner{SessionID: r.SessionID}
}

// CanAccessCart проверяет владение корзиной.
func (r Requester) CanAccessCart(c Cart) bool {
	if r.IsAdmin() {
		return true
	}
	if c.UserID != "" {
		return r.UserID == c.UserID
	}
	return r.SessionID != "" && r.SessionID == c.SessionID
}

// SystemRequester используется фоновыми процессами (сидинг, консьюмеры).
func SystemRequester(actor string) Requester {
	return Requester{UserID: actor, Role: RoleAdmin}
}
