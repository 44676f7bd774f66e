package tasksvc

import "github.com/ichigozero/taskkeeper/authsvc"

type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

// Authorize is the single-owner rule: only the principal whose id equals
// ownerID may touch the task. There is no sharing and no admin override.
func Authorize(p authsvc.Principal, ownerID string) Decision {
	if p.ID == "" || p.ID != ownerID {
		return Deny
	}
	return Allow
}
