package router

import (
	"errors"
	"strings"

	"github.com/lingoleap/webauth/profile"
)

// Route is an application path such as "/student/dashboard".
type Route string

func (r Route) String() string {
	return string(r)
}

const (
	DefaultAdminRoute    Route = "/admin/dashboard"
	DefaultLecturerRoute Route = "/teacher/dashboard"
	DefaultStudentRoute  Route = "/student/dashboard"
	DefaultHomeRoute     Route = "/"
)

// Table holds the landing route for each role plus the fallback.
type Table struct {
	Admin    Route
	Lecturer Route
	Student  Route
	Home     Route
}

// DefaultTable returns the platform's standard dashboards.
func DefaultTable() Table {
	return Table{
		Admin:    DefaultAdminRoute,
		Lecturer: DefaultLecturerRoute,
		Student:  DefaultStudentRoute,
		Home:     DefaultHomeRoute,
	}
}

// For returns the landing route for role. Unknown roles land on Home.
func (t Table) For(role profile.Role) Route {
	switch role {
	case profile.RoleAdmin:
		return t.Admin
	case profile.RoleLecturer:
		return t.Lecturer
	case profile.RoleStudent:
		return t.Student
	default:
		return t.Home
	}
}

// Validate checks that every route is an absolute path.
func (t Table) Validate() error {
	for _, r := range []Route{t.Admin, t.Lecturer, t.Student, t.Home} {
		if !strings.HasPrefix(string(r), "/") {
			return errors.New("route must be an absolute path: " + string(r))
		}
	}
	return nil
}

// For resolves role against [DefaultTable].
func For(role profile.Role) Route {
	return DefaultTable().For(role)
}
