package project

import (
	"time"

	"github.com/kazz187/sitecrew/internal/geofence"
)

type Project struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Geofence    geofence.Fence `yaml:"geofence" json:"geofence"`
	CreatedAt   time.Time      `yaml:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `yaml:"updated_at" json:"updatedAt"`
}
