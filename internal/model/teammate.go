package model

type Teammate struct {
	Base
	Email       string
	Username    string
	FirstName   string
	LastName    string
	IsAdmin     bool
	IsAvailable bool
	IsBlocked   bool
}

func (t *Teammate) DisplayName() string {
	switch {
	case t.FirstName != "" && t.LastName != "":
		return t.FirstName + " " + t.LastName
	case t.FirstName != "":
		return t.FirstName
	case t.Username != "":
		return t.Username
	default:
		return t.Email
	}
}
