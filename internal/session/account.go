package session

import (
	"math"
	"time"
)

const (
	DefaultDailyCalorieGoal = 2500
	DefaultDailyWaterGoal   = 8
)

type FitnessLevel string

const (
	FitnessLevelBeginner     FitnessLevel = "beginner"
	FitnessLevelIntermediate FitnessLevel = "intermediate"
	FitnessLevelAdvanced     FitnessLevel = "advanced"
)

func (l FitnessLevel) Valid() bool {
	switch l {
	case FitnessLevelBeginner, FitnessLevelIntermediate, FitnessLevelAdvanced:
		return true
	}
	return false
}

// Account is a registered user, as stored in the catalog.
type Account struct {
	Email             string       `json:"email"`
	Credential        string       `json:"credential"`
	CredentialScheme  string       `json:"credentialScheme"`
	FullName          string       `json:"fullName"`
	ProfilePictureRef *string      `json:"profilePicture"`
	CurrentWeight     float64      `json:"currentWeight"`
	DailyCalorieGoal  int          `json:"dailyCalorieGoal"`
	DailyWaterGoal    int          `json:"dailyWaterGoal"`
	FitnessLevel      FitnessLevel `json:"fitnessLevel"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// Session is the authenticated identity: the account without its credential.
type Session struct {
	Email             string       `json:"email"`
	FullName          string       `json:"fullName"`
	ProfilePictureRef *string      `json:"profilePicture"`
	CurrentWeight     float64      `json:"currentWeight"`
	DailyCalorieGoal  int          `json:"dailyCalorieGoal"`
	DailyWaterGoal    int          `json:"dailyWaterGoal"`
	FitnessLevel      FitnessLevel `json:"fitnessLevel"`
	CreatedAt         time.Time    `json:"createdAt"`
}

func (a Account) Session() Session {
	return Session{
		Email:             a.Email,
		FullName:          a.FullName,
		ProfilePictureRef: copyStringPtr(a.ProfilePictureRef),
		CurrentWeight:     a.CurrentWeight,
		DailyCalorieGoal:  a.DailyCalorieGoal,
		DailyWaterGoal:    a.DailyWaterGoal,
		FitnessLevel:      a.FitnessLevel,
		CreatedAt:         a.CreatedAt,
	}
}

// applyDefaults fills in goal fields that older records may lack.
func (a *Account) applyDefaults() {
	if a.DailyCalorieGoal == 0 {
		a.DailyCalorieGoal = DefaultDailyCalorieGoal
	}
	if a.DailyWaterGoal == 0 {
		a.DailyWaterGoal = DefaultDailyWaterGoal
	}
	if a.FitnessLevel == "" {
		a.FitnessLevel = FitnessLevelBeginner
	}
}

// ProfileUpdate carries the mutable account fields. Nil fields are left as they are.
type ProfileUpdate struct {
	FullName          *string       `json:"fullName"`
	ProfilePictureRef *string       `json:"profilePictureRef"`
	CurrentWeight     *float64      `json:"currentWeight"`
	DailyCalorieGoal  *int          `json:"dailyCalorieGoal"`
	DailyWaterGoal    *int          `json:"dailyWaterGoal"`
	FitnessLevel      *FitnessLevel `json:"fitnessLevel"`
}

func (u ProfileUpdate) Validate() error {
	if u.FullName != nil && isBlank(*u.FullName) {
		return invalidRequestErr("full name is empty")
	}
	if u.CurrentWeight != nil {
		if math.IsNaN(*u.CurrentWeight) || math.IsInf(*u.CurrentWeight, 0) {
			return invalidRequestErr("current weight is not a number")
		}
		if *u.CurrentWeight < 0 {
			return invalidRequestErr("current weight is negative")
		}
	}
	if u.DailyCalorieGoal != nil && *u.DailyCalorieGoal <= 0 {
		return invalidRequestErr("daily calorie goal must be positive")
	}
	if u.DailyWaterGoal != nil && *u.DailyWaterGoal <= 0 {
		return invalidRequestErr("daily water goal must be positive")
	}
	if u.FitnessLevel != nil && !u.FitnessLevel.Valid() {
		return invalidRequestErr("unknown fitness level [%s]", *u.FitnessLevel)
	}
	return nil
}

func (u ProfileUpdate) apply(a *Account) {
	if u.FullName != nil {
		a.FullName = *u.FullName
	}
	if u.ProfilePictureRef != nil {
		if *u.ProfilePictureRef == "" {
			a.ProfilePictureRef = nil
		} else {
			a.ProfilePictureRef = copyStringPtr(u.ProfilePictureRef)
		}
	}
	if u.CurrentWeight != nil {
		a.CurrentWeight = *u.CurrentWeight
	}
	if u.DailyCalorieGoal != nil {
		a.DailyCalorieGoal = *u.DailyCalorieGoal
	}
	if u.DailyWaterGoal != nil {
		a.DailyWaterGoal = *u.DailyWaterGoal
	}
	if u.FitnessLevel != nil {
		a.FitnessLevel = *u.FitnessLevel
	}
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
