// Package models defines domain models for pawwatch.
package models

import "time"

// Delivery records the per-channel outcome of one trigger.
type Delivery struct {
	InApp bool `json:"in_app"`
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

// Set records the outcome for a channel.
func (d *Delivery) Set(channel Channel, ok bool) {
	switch channel {
	case ChannelInApp:
		d.InApp = ok
	case ChannelEmail:
		d.Email = ok
	case ChannelPush:
		d.Push = ok
	}
}

// Delivered returns the number of channels that delivered successfully.
func (d Delivery) Delivered() int {
	n := 0
	for _, ok := range []bool{d.InApp, d.Email, d.Push} {
		if ok {
			n++
		}
	}
	return n
}

// TriggerHistory records when a rule fired.
type TriggerHistory struct {
	ID                string      `json:"id"`
	RuleID            string      `json:"rule_id"`
	UserID            string      `json:"user_id"`
	PetID             string      `json:"pet_id"`
	AnomalyType       AnomalyType `json:"anomaly_type"`
	Severity          Severity    `json:"severity"`
	Confidence        float64     `json:"confidence"`
	Description       string      `json:"description"`
	Delivery          Delivery    `json:"delivery"`
	NotificationsSent int         `json:"notifications_sent"`
	TriggeredAt       time.Time   `json:"triggered_at"`
}

// TriggerClaim is a conditional rule stats update. It succeeds only if the
// stored last trigger time still equals PreviousTriggered.
type TriggerClaim struct {
	RuleID            string
	PreviousTriggered *time.Time
	History           *TriggerHistory
}
