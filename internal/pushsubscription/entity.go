package pushsubscription

import "time"

// Subscription is a Web Push endpoint owned by one supervisor.
type Subscription struct {
	ID           string    `yaml:"id" json:"id"`
	SupervisorID string    `yaml:"supervisor_id" json:"supervisorId"`
	Endpoint     string    `yaml:"endpoint" json:"endpoint"`
	P256dhKey    string    `yaml:"p256dh_key" json:"p256dhKey"`
	AuthKey      string    `yaml:"auth_key" json:"authKey"`
	CreatedAt    time.Time `yaml:"created_at" json:"createdAt"`
}
