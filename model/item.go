package model

type Item struct {
	ID     int64   `json:"id" msgpack:"-"`
	Name   string  `json:"name" msgpack:"n"`
	Size   float64 `json:"size" msgpack:"s"`
	Weight float64 `json:"weight" msgpack:"w"`
	Color  string  `json:"color" msgpack:"c"`
}

func (it Item) RecordID() int64 { return it.ID }

func (it Item) WithRecordID(id int64) Item {
	it.ID = id
	return it
}

// Validate checks the fields required to create an item.
func (it *Item) Validate() error {
	if isBlank(it.Name) {
		return &MissingFieldError{"name"}
	}
	return nil
}

// ItemPatch is a partial item; nil fields are left unchanged.
type ItemPatch struct {
	Name   *string  `json:"name"`
	Size   *float64 `json:"size"`
	Weight *float64 `json:"weight"`
	Color  *string  `json:"color"`
}

func (p *ItemPatch) Apply(it Item) Item {
	if p == nil {
		return it
	}
	apply(&it.Name, p.Name)
	apply(&it.Size, p.Size)
	apply(&it.Weight, p.Weight)
	apply(&it.Color, p.Color)
	return it
}
