package domain

import "time"

type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"
	SlotAfternoon TimeSlot = "afternoon"
	SlotEvening   TimeSlot = "evening"
	SlotASAP      TimeSlot = "asap"
)

const (
	DefaultDeliveryWindow = 30 * time.Minute
	ASAPDeliveryWindow    = 2 * time.Hour
)

var slotHours = map[TimeSlot]int{
	SlotMorning:   10,
	SlotAfternoon: 14,
	SlotEvening:   18,
}

// EstimateDelivery computes the promised delivery time. With no schedule the
// order is due DefaultDeliveryWindow after now. Unrecognised slots fall back
// to the afternoon slot; a slot without a date is scheduled for today.
func EstimateDelivery(now time.Time, date *time.Time, slot TimeSlot) time.Time {
	if slot == "" && date == nil {
		return now.Add(DefaultDeliveryWindow)
	}
	if slot == SlotASAP {
		return now.Add(ASAPDeliveryWindow)
	}

	hour, ok := slotHours[slot]
	if !ok {
		hour = slotHours[SlotAfternoon]
	}

	day := now
	if date != nil {
		day = date.In(now.Location())
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, now.Location())
}
