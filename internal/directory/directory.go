// Package directory reads the auxiliary and users sheets and derives the
// identifier and initial status of new maps.
package directory

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gratuity-map-service/internal/changeset"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/pkg/errors"
)

// Column positions in the auxiliary and users sheets.
const (
	auxEventCol    = 1  // B
	auxYearCol     = 5  // F
	auxMapCol      = 8  // I
	auxMotiveCol   = 10 // K
	auxDestCol     = 12 // M
	auxUnitCol     = 14 // O
	usersAdminMail = 6  // G
	usersAdminPass = 7  // H
)

// Auxiliar holds the option lists of the auxiliary sheet.
type Auxiliar struct {
	Eventos           []string `json:"eventos"`
	Motivos           []string `json:"motivos"`
	Destinos          []string `json:"destinos"`
	OMs               []string `json:"oms"`
	Mapas             []string `json:"mapas"`
	ExercicioCorrente string   `json:"exercicio"`
}

// ParseAuxiliar reads events, motives and destinations from the third row
// on, units and map labels from the second row on, and the current fiscal
// year from F2. Empty cells are dropped.
func ParseAuxiliar(grid parsers.Grid) *Auxiliar {
	aux := &Auxiliar{}
	if len(grid) < 2 {
		return aux
	}
	aux.ExercicioCorrente = strings.TrimSpace(grid.Cell(1, auxYearCol))
	aux.Eventos = column(grid, auxEventCol, 2)
	aux.Motivos = column(grid, auxMotiveCol, 2)
	aux.Destinos = column(grid, auxDestCol, 2)
	aux.OMs = column(grid, auxUnitCol, 1)
	aux.Mapas = column(grid, auxMapCol, 1)
	return aux
}

func column(grid parsers.Grid, col, from int) []string {
	out := []string{}
	for r := from; r < len(grid); r++ {
		if v := grid.Cell(r, col); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// User is one unit login of the users sheet.
type User struct {
	OM       string `json:"om"`
	Senha    string `json:"senha"`
	Email    string `json:"email"`
	Telefone string `json:"telefone"`
}

// Users is the parsed users sheet.
type Users struct {
	Users         []User `json:"users"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

// ParseUsers reads unit logins from the second row on (unit, password,
// e-mail, phone) and the admin credentials from G2 and H2. Rows missing a
// unit or a password are dropped.
func ParseUsers(grid parsers.Grid) *Users {
	users := &Users{Users: []User{}}
	if len(grid) < 2 {
		return users
	}
	users.AdminEmail = grid.Cell(1, usersAdminMail)
	users.AdminPassword = grid.Cell(1, usersAdminPass)

	for r := 1; r < len(grid); r++ {
		u := User{
			OM:       grid.Cell(r, 0),
			Senha:    grid.Cell(r, 1),
			Email:    grid.Cell(r, 2),
			Telefone: grid.Cell(r, 3),
		}
		if u.OM == "" || u.Senha == "" {
			continue
		}
		users.Users = append(users.Users, u)
	}
	return users
}

// Units returns the units that have a login, in sheet order.
func (u *Users) Units() []string {
	units := make([]string, 0, len(u.Users))
	for _, user := range u.Users {
		units = append(units, user.OM)
	}
	return units
}

// Role is the kind of viewer.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleOM    Role = "OM"
)

// Identity is an authenticated viewer.
type Identity struct {
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	OM    string `json:"om,omitempty"`
	Email string `json:"email,omitempty"`
}

// ErrBadCredentials is returned by Authenticate for any rejected login.
var ErrBadCredentials = errors.AuthError(errors.CodeBadCredentials, "")

// Authenticate checks a password for the admin role or for one unit.
// Passwords are compared after trimming. An empty admin password in the
// sheet rejects every admin login.
func (u *Users) Authenticate(role Role, unit, password string) (*Identity, error) {
	password = strings.TrimSpace(password)
	switch role {
	case RoleAdmin:
		expected := strings.TrimSpace(u.AdminPassword)
		if expected == "" || password != expected {
			return nil, ErrBadCredentials
		}
		return &Identity{Name: "Administrador", Role: RoleAdmin, Email: u.AdminEmail}, nil
	case RoleOM:
		for _, user := range u.Users {
			if user.OM == unit && strings.TrimSpace(user.Senha) == password {
				return &Identity{Name: "Oficial " + unit, Role: RoleOM, OM: unit, Email: user.Email}, nil
			}
		}
	}
	return nil, ErrBadCredentials
}

var mapNumber = regexp.MustCompile(`^(\d+)/(\d{2,4})`)

// NextMapNumber returns one more than the highest leading sequence number
// among ids of year, or 1 when there is none.
func NextMapNumber(ids []string, year string) int {
	highest := 0
	for _, id := range ids {
		m := mapNumber.FindStringSubmatch(strings.TrimSpace(id))
		if m == nil || normalizeYear(m[2]) != normalizeYear(year) {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

func normalizeYear(y string) string {
	y = strings.TrimSpace(y)
	if len(y) == 2 {
		return "20" + y
	}
	return y
}

// ComposeMapID builds the identifier of a new map.
func ComposeMapID(n int, year, unit string) string {
	return fmt.Sprintf("%d/%s - 4 Bda/%s", n, year, unit)
}

// Initial statuses of a new map.
const (
	StatusForwarded    = "Encaminhado para a 4ª Bda Inf L Mth."
	StatusNotForwarded = "Não encaminhado à Bda"
)

// InitialStatus is the status of a new map: forwarded once it has a
// dispatch number.
func InitialStatus(nrDiex string) string {
	if strings.TrimSpace(nrDiex) != "" {
		return StatusForwarded
	}
	return StatusNotForwarded
}

// YearOf returns the year of an event date, or the year of now when the
// date has none.
func YearOf(date string, now time.Time) string {
	if y := changeset.YearOf(date); y != "" {
		return y
	}
	return strconv.Itoa(now.Year())
}
