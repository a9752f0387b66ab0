package model

type Business struct {
	ID             string
	Name           string
	Timezone       string
	DayStartMinute int // anchor for the slot grid, minutes from midnight
	AutoConfirm    bool
}

// BusinessDay is one weekday row of a business's open-hours table. Minutes are
// counted from local midnight. Lunch, when set, lies strictly inside the open
// window (enforced by a CHECK constraint).
type BusinessDay struct {
	Weekday          int // 0=Sunday .. 6=Saturday
	IsOpen           bool
	OpenMinute       int
	CloseMinute      int
	LunchStartMinute int // 0 when no lunch break
	LunchEndMinute   int
}

func (d BusinessDay) HasLunch() bool {
	return d.LunchEndMinute > d.LunchStartMinute
}

type Service struct {
	ID             string
	BusinessID     string
	Name           string
	DurationMins   int
	SlotsNeeded    int // 0 means derive from duration
	Capacity       int // 1 = exclusive one-on-one, >1 = group/class
	SlotTemplateID string
	IsActive       bool
}

func (s Service) Exclusive() bool { return s.Capacity <= 1 }

type SlotTemplate struct {
	ID           string
	BusinessID   string // empty for global defaults
	Name         string
	SlotsNeeded  int
	DurationMins int
	Category     string
	IsDefault    bool
}

type Staff struct {
	ID         string
	BusinessID string
	Name       string
	IsActive   bool
}

type Client struct {
	ID         string
	BusinessID string
	Name       string
	Email      string
	Phone      string
	IsEligible bool
}
