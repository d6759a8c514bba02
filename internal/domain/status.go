package domain

import "time"

// StatusCheck is an audit record written by clients pinging the service.
type StatusCheck struct {
	ID         string
	ClientName string
	Timestamp  time.Time
}
