package models

import "fmt"

type View string

const (
	ViewHome           View = "home"
	ViewSubmissionForm View = "submission_form"
	ViewLogin          View = "login"
	ViewDashboard      View = "authenticated_dashboard"
)

type Event string

const (
	EventRequestPost    Event = "request_post"
	EventSubmitted      Event = "submitted"
	EventCancel         Event = "cancel"
	EventRequestAdmin   Event = "request_admin"
	EventLoginSucceeded Event = "login_succeeded"
	EventLogout         Event = "logout"
)

var viewTransitions = map[View]map[Event]View{
	ViewHome: {
		EventRequestPost:  ViewSubmissionForm,
		EventRequestAdmin: ViewLogin,
	},
	ViewSubmissionForm: {
		EventSubmitted: ViewHome,
		EventCancel:    ViewHome,
	},
	ViewLogin: {
		EventLoginSucceeded: ViewDashboard,
		EventCancel:         ViewHome,
	},
	ViewDashboard: {
		EventLogout: ViewHome,
	},
}

// ViewController selects the screen to present. The dashboard is only
// reachable while the session flag is set.
type ViewController struct {
	current       View
	authenticated bool
}

// NewViewController starts at home with no session.
func NewViewController() *ViewController {
	return &ViewController{current: ViewHome}
}

// SetAuthenticated seeds the session flag from a session check.
func (vc *ViewController) SetAuthenticated(ok bool) {
	vc.authenticated = ok
}

func (vc *ViewController) Authenticated() bool { return vc.authenticated }

// Current returns the screen to render.
func (vc *ViewController) Current() View {
	if vc.current == ViewDashboard && !vc.authenticated {
		return ViewHome
	}
	return vc.current
}

// Fire applies an event. Illegal events leave the state unchanged.
func (vc *ViewController) Fire(ev Event) (View, error) {
	from := vc.Current()
	next, ok := viewTransitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
	}
	if next == ViewDashboard && !vc.authenticated {
		return from, fmt.Errorf("%w: no valid session", ErrIllegalTransition)
	}
	if ev == EventLogout {
		vc.authenticated = false
	}
	vc.current = next
	return next, nil
}

// Replay fires events in order and stops at the first illegal one.
func (vc *ViewController) Replay(events ...Event) (View, error) {
	for _, ev := range events {
		if _, err := vc.Fire(ev); err != nil {
			return vc.Current(), err
		}
	}
	return vc.Current(), nil
}
