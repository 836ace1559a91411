package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/internal/cases/models"
	"landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/requestcontext"
)

var (
	cadastreActor = requestcontext.Actor{ID: domain.NewActorID().String(), Capabilities: RoleCadastre}
	clerkActor    = requestcontext.Actor{ID: domain.NewActorID().String(), Capabilities: RoleClerk}
	emptyActor    = requestcontext.Actor{}
)

func registrationFixture(t *testing.T) *models.Case {
	t.Helper()
	c, err := models.NewCase(domain.NewCaseID(), models.TypeNewRegistration, domain.NewActorID(), nil,
		models.CaseData{ParcelNumber: "RT-1881"}, time.Now())
	require.NoError(t, err)
	return c
}

func transferFixture(t *testing.T) *models.Case {
	t.Helper()
	parcelID := domain.NewParcelID()
	c, err := models.NewCase(domain.NewCaseID(), models.TypeTransfer, domain.NewActorID(), &parcelID,
		models.CaseData{}, time.Now())
	require.NoError(t, err)
	return c
}

func TestClassOf(t *testing.T) {
	technical := []models.ChecklistKey{models.KeySurveyValid, models.KeyNoOverlap, models.KeyFieldReport}
	legal := []models.ChecklistKey{models.KeyIdentityVerified, models.KeyTaxCleared, models.KeyNotarySeal}

	for _, key := range technical {
		assert.Equal(t, SodTechnical, ClassOf(key), "%s", key)
	}
	for _, key := range legal {
		assert.Equal(t, SodLegal, ClassOf(key), "%s", key)
	}
}

func TestMayCertify(t *testing.T) {
	t.Run("cadastre certifies technical keys only", func(t *testing.T) {
		assert.True(t, MayCertify(cadastreActor, models.KeySurveyValid))
		assert.False(t, MayCertify(cadastreActor, models.KeyNotarySeal))
	})

	t.Run("legal class is the absence of the technical capability", func(t *testing.T) {
		assert.True(t, MayCertify(clerkActor, models.KeyNotarySeal))
		assert.False(t, MayCertify(clerkActor, models.KeySurveyValid))
	})

	t.Run("an empty actor still certifies nothing technical", func(t *testing.T) {
		assert.False(t, MayCertify(emptyActor, models.KeyFieldReport))
	})
}

func TestSetChecklistItem(t *testing.T) {
	t.Run("allowed class mutates the entry", func(t *testing.T) {
		c := registrationFixture(t)
		require.NoError(t, SetChecklistItem(c, models.KeyNoOverlap, true, cadastreActor))
		assert.True(t, c.ChecklistValue(models.KeyNoOverlap))
	})

	t.Run("violation names the key and class", func(t *testing.T) {
		c := registrationFixture(t)
		err := SetChecklistItem(c, models.KeySurveyValid, true, clerkActor)
		require.True(t, dErrors.HasCode(err, dErrors.CodeSodViolation))
		assert.Contains(t, err.Error(), "survey_valid")
		assert.Contains(t, err.Error(), "technical")
		assert.False(t, c.ChecklistValue(models.KeySurveyValid))
	})
}

func TestApplyChecklistPatch(t *testing.T) {
	t.Run("all-or-nothing on a mixed patch", func(t *testing.T) {
		c := registrationFixture(t)
		err := ApplyChecklistPatch(c, map[models.ChecklistKey]bool{
			models.KeyIdentityVerified: true,
			models.KeySurveyValid:      true,
		}, clerkActor)
		require.True(t, dErrors.HasCode(err, dErrors.CodeSodViolation))
		assert.False(t, c.ChecklistValue(models.KeyIdentityVerified), "no partial application")
	})

	t.Run("clean patch applies every entry", func(t *testing.T) {
		c := registrationFixture(t)
		require.NoError(t, ApplyChecklistPatch(c, map[models.ChecklistKey]bool{
			models.KeyIdentityVerified: true,
			models.KeyTaxCleared:       true,
		}, clerkActor))
		assert.True(t, c.ChecklistValue(models.KeyIdentityVerified))
		assert.True(t, c.ChecklistValue(models.KeyTaxCleared))
	})
}

func TestRequiredKeys(t *testing.T) {
	assert.ElementsMatch(t, []models.ChecklistKey{
		models.KeyIdentityVerified, models.KeyTaxCleared, models.KeyNotarySeal, models.KeyNoOverlap,
	}, RequiredKeys(models.TypeTransfer))

	full := []models.ChecklistKey{
		models.KeyIdentityVerified, models.KeyTaxCleared, models.KeySurveyValid,
		models.KeyFieldReport, models.KeyNoOverlap,
	}
	assert.ElementsMatch(t, full, RequiredKeys(models.TypeNewRegistration))
	assert.ElementsMatch(t, full, RequiredKeys(models.TypeSubdivision))
}

func TestIsReady(t *testing.T) {
	t.Run("registration needs every key and the cadastre stamp", func(t *testing.T) {
		c := registrationFixture(t)
		for _, key := range RequiredKeys(c.Type) {
			c.Data.Checklist[key] = true
		}
		assert.False(t, IsReady(c), "stamp missing")

		stamp := time.Now()
		c.Data.CadastreValidatedAt = &stamp
		assert.True(t, IsReady(c))
	})

	t.Run("transfer never needs the stamp", func(t *testing.T) {
		c := transferFixture(t)
		for _, key := range RequiredKeys(c.Type) {
			c.Data.Checklist[key] = true
		}
		assert.True(t, IsReady(c))
	})

	t.Run("one missing key blocks readiness", func(t *testing.T) {
		c := transferFixture(t)
		for _, key := range RequiredKeys(c.Type) {
			c.Data.Checklist[key] = true
		}
		c.Data.Checklist[models.KeyNotarySeal] = false
		assert.False(t, IsReady(c))
	})
}
