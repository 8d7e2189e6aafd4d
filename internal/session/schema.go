package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// CatalogKey and SessionKey are the durable store keys of the two records the manager owns.
	CatalogKey = "healthTracker_users"
	SessionKey = "healthTracker_user"

	// SchemaVersion is written with every record. Records without a version are
	// the unversioned layout of the original app and decode as version 0.
	SchemaVersion = 1

	schemaVersionField = "schemaVersion"
)

type catalogRecord struct {
	SchemaVersion int                `json:"schemaVersion"`
	Accounts      map[string]Account `json:"accounts"`
}

type sessionRecord struct {
	SchemaVersion int      `json:"schemaVersion"`
	Session       *Session `json:"session"`
}

func encodeCatalog(catalog map[string]Account) ([]byte, error) {
	return json.Marshal(catalogRecord{
		SchemaVersion: SchemaVersion,
		Accounts:      catalog,
	})
}

func encodeSession(s Session) ([]byte, error) {
	return json.Marshal(sessionRecord{
		SchemaVersion: SchemaVersion,
		Session:       &s,
	})
}

func decodeCatalog(raw []byte) (map[string]Account, error) {
	version, err := recordVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	switch version {
	case 0:
		return decodeLegacyCatalog(raw)
	case 1:
		var record catalogRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("unmarshal catalog: %w", err)
		}
		if record.Accounts == nil {
			record.Accounts = make(map[string]Account)
		}
		return record.Accounts, nil
	}

	return nil, fmt.Errorf("catalog version %d: %w", version, ErrUnsupportedSchema)
}

func decodeSession(raw []byte) (Session, error) {
	version, err := recordVersion(raw)
	if err != nil {
		return Session{}, fmt.Errorf("session: %w", err)
	}

	switch version {
	case 0:
		var legacy legacyAccount
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return Session{}, fmt.Errorf("unmarshal legacy session: %w", err)
		}
		return legacy.account().Session(), nil
	case 1:
		var record sessionRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return Session{}, fmt.Errorf("unmarshal session: %w", err)
		}
		if record.Session == nil {
			return Session{}, fmt.Errorf("session record is empty")
		}
		return *record.Session, nil
	}

	return Session{}, fmt.Errorf("session version %d: %w", version, ErrUnsupportedSchema)
}

// recordVersion reads the schemaVersion field of a JSON object, 0 when it is absent.
func recordVersion(raw []byte) (int, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return 0, fmt.Errorf("not a json object: %w", err)
	}

	versionRaw, ok := fields[schemaVersionField]
	if !ok {
		return 0, nil
	}

	var version int
	if err := json.Unmarshal(versionRaw, &version); err != nil {
		return 0, fmt.Errorf("invalid schema version %s: %w", versionRaw, err)
	}
	if version < 1 {
		return 0, fmt.Errorf("invalid schema version %d", version)
	}

	return version, nil
}

// legacyAccount is the unversioned user object: the secret is stored in clear under "password".
type legacyAccount struct {
	Email            string       `json:"email"`
	Password         string       `json:"password"`
	FullName         string       `json:"fullName"`
	ProfilePicture   *string      `json:"profilePicture"`
	CurrentWeight    legacyNumber `json:"currentWeight"`
	DailyCalorieGoal legacyNumber `json:"dailyCalorieGoal"`
	DailyWaterGoal   legacyNumber `json:"dailyWaterGoal"`
	FitnessLevel     FitnessLevel `json:"fitnessLevel"`
	CreatedAt        *time.Time   `json:"createdAt"`
}

func (l legacyAccount) account() Account {
	a := Account{
		Email:             l.Email,
		Credential:        l.Password,
		CredentialScheme:  CredentialSchemePlain,
		FullName:          l.FullName,
		ProfilePictureRef: l.ProfilePicture,
		CurrentWeight:     float64(l.CurrentWeight),
		DailyCalorieGoal:  int(l.DailyCalorieGoal),
		DailyWaterGoal:    int(l.DailyWaterGoal),
		FitnessLevel:      l.FitnessLevel,
	}
	if l.CreatedAt != nil {
		a.CreatedAt = l.CreatedAt.UTC()
	}
	a.applyDefaults()
	return a
}

func decodeLegacyCatalog(raw []byte) (map[string]Account, error) {
	var legacy map[string]legacyAccount
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("unmarshal legacy catalog: %w", err)
	}

	catalog := make(map[string]Account, len(legacy))
	for email, l := range legacy {
		a := l.account()
		// the map key is authoritative for lookups
		a.Email = email
		catalog[email] = a
	}
	return catalog, nil
}

// legacyNumber accepts both 70 and "70", profile forms stored numbers as strings.
type legacyNumber float64

func (n *legacyNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("legacy number %q: %w", s, err)
		}
		*n = legacyNumber(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = legacyNumber(f)
	return nil
}
