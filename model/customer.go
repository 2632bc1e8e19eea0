package model

type Customer struct {
	ID       int64  `json:"id" msgpack:"-"`
	Name     string `json:"name" msgpack:"n"`
	LastName string `json:"lastName" msgpack:"l"`
	Gender   string `json:"gender" msgpack:"g"`
	Email    string `json:"email" msgpack:"e"`
}

func (c Customer) RecordID() int64 { return c.ID }

func (c Customer) WithRecordID(id int64) Customer {
	c.ID = id
	return c
}

// Validate checks the fields required to create a customer.
func (c *Customer) Validate() error {
	if isBlank(c.Email) {
		return &MissingFieldError{"email"}
	}
	return nil
}

// CustomerPatch is a partial customer; nil fields are left unchanged.
type CustomerPatch struct {
	Name     *string `json:"name"`
	LastName *string `json:"lastName"`
	Gender   *string `json:"gender"`
	Email    *string `json:"email"`
}

// Apply returns c with the fields set in p replaced. A nil patch returns c.
func (p *CustomerPatch) Apply(c Customer) Customer {
	if p == nil {
		return c
	}
	apply(&c.Name, p.Name)
	apply(&c.LastName, p.LastName)
	apply(&c.Gender, p.Gender)
	apply(&c.Email, p.Email)
	return c
}
