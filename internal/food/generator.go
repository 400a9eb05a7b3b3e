package food

import (
	"fmt"
	"time"
)

// Clock supplies "now" to everything that depends on the current day.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

const (
	groupsPerDay    = 3
	variantsPerMeal = 3
	MenuDays        = 10
)

type Generator struct {
	clock Clock
}

func NewGenerator(clock Clock) *Generator {
	return &Generator{clock: clock}
}

// Today is the start of the current UTC day in seconds.
func (g *Generator) Today() int64 {
	now := g.clock.Now().Unix()
	return (now / secondsPerDay) * secondsPerDay
}

func (g *Generator) Now() time.Time {
	return g.clock.Now()
}

// Generate derives a menu entry from its id. Price depends on the user.
func (g *Generator) Generate(id ID, userID int64) (MenuEntry, error) {
	group := id.Group()
	if !group.Valid() {
		return MenuEntry{}, fmt.Errorf("%w: %d has unknown group %d", ErrInvalidFoodID, int64(id), int(group))
	}

	variant := id.Variant()
	day := id.Day()
	date := time.Unix(day, 0).UTC()
	today := g.Today()

	entry := MenuEntry{
		ID:    id,
		Name:  fmt.Sprintf("%s %d", group, variant),
		Group: group.String(),
		Text:  fmt.Sprintf("%s text %d on %s", group, variant, date.Format("Mon 2006-01-02 ")),
		Price: int(group)*10 + variant,
		Date:  date,
		Remaining: Remaining{
			ToTake:  -1,
			ToOrder: -1,
		},
	}
	if userID > 2 {
		entry.Price *= 2
	}

	switch group {
	case Lunch:
		entry.Features = Features{
			Orders:        today != day,
			FoodStock:     today == day,
			RemainingFood: true,
		}
	default:
		entry.Features = Features{Orders: today != day}
	}

	return entry, nil
}

// Menu lists every entry for the next MenuDays days, starting today.
func (g *Generator) Menu(userID int64) []MenuEntry {
	entries := make([]MenuEntry, 0, MenuDays*groupsPerDay*variantsPerMeal)
	day := g.Today()
	for i := 0; i < MenuDays; i++ {
		for _, id := range dayIDs(day) {
			entry, err := g.Generate(id, userID)
			if err != nil {
				continue
			}
			entries = append(entries, entry)
		}
		day += secondsPerDay
	}
	return entries
}

// TodayIDs lists every food id served today.
func (g *Generator) TodayIDs() []ID {
	return dayIDs(g.Today())
}

// RemainingToTake is the mock count of food left at the counter; it cycles
// every minute.
func (g *Generator) RemainingToTake() int {
	return (60 - g.clock.Now().Second()) / 5
}

func dayIDs(day int64) []ID {
	ids := make([]ID, 0, groupsPerDay*variantsPerMeal)
	for group := 1; group <= groupsPerDay; group++ {
		for variant := 1; variant <= variantsPerMeal; variant++ {
			ids = append(ids, NewID(day, Group(group), variant))
		}
	}
	return ids
}
