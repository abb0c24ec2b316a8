package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/caseguard/internal/models"
	"github.com/wolfeidau/caseguard/internal/store"
)

var (
	applicants = models.Entity{
		Name: "applicants", Table: "applicants", IDColumn: "id",
		Class: models.ClassCaseRecords, Tenancy: models.Direct("center_id"),
		Columns: []string{"first_name"},
	}
	caseNotes = models.Entity{
		Name: "case_notes", Table: "case_notes", IDColumn: "id",
		Class: models.ClassCaseRecords, Tenancy: models.JoinedThrough(applicants, "applicant_id"),
		Columns: []string{"applicant_id", "body"},
	}
	centers = models.Entity{
		Name: "centers", Table: "centers", IDColumn: "id",
		Class: models.ClassCenterManagement, Tenancy: models.Direct("id"),
		Columns: []string{"name"},
	}

	worker = models.Principal{Role: models.RoleCaseworker, HomeTenant: "7", Username: "sam"}
	admin  = models.Principal{Role: models.RoleAppAdmin, Username: "root"}
)

func TestStampCreate(t *testing.T) {
	tests := []struct {
		name   string
		p      models.Principal
		entity models.Entity
		bypass bool
		fields store.Fields
		want   store.Fields
	}{
		{
			name:   "tenant from principal",
			p:      worker,
			entity: applicants,
			fields: store.Fields{"first_name": "Ana"},
			want:   store.Fields{"first_name": "Ana", "created_by": "sam", "updated_by": "sam", "center_id": int64(7)},
		},
		{
			name:   "caller tenant is overridden",
			p:      worker,
			entity: applicants,
			fields: store.Fields{"first_name": "Ana", "center_id": 99},
			want:   store.Fields{"first_name": "Ana", "created_by": "sam", "updated_by": "sam", "center_id": int64(7)},
		},
		{
			name:   "caller updated_by is ignored and id dropped",
			p:      worker,
			entity: applicants,
			fields: store.Fields{"id": 5, "updated_by": "mallory"},
			want:   store.Fields{"created_by": "sam", "updated_by": "sam", "center_id": int64(7)},
		},
		{
			name:   "created_by kept when supplied",
			p:      worker,
			entity: applicants,
			fields: store.Fields{"created_by": "import"},
			want:   store.Fields{"created_by": "import", "updated_by": "sam", "center_id": int64(7)},
		},
		{
			name:   "bypass with explicit tenant",
			p:      admin,
			entity: applicants,
			bypass: true,
			fields: store.Fields{"center_id": "3"},
			want:   store.Fields{"created_by": "root", "updated_by": "root", "center_id": int64(3)},
		},
		{
			name:   "bypass with zero tenant stores null",
			p:      admin,
			entity: applicants,
			bypass: true,
			fields: store.Fields{"center_id": 0},
			want:   store.Fields{"created_by": "root", "updated_by": "root", "center_id": nil},
		},
		{
			name:   "bypass without tenant stores null",
			p:      admin,
			entity: applicants,
			bypass: true,
			fields: store.Fields{},
			want:   store.Fields{"created_by": "root", "updated_by": "root", "center_id": nil},
		},
		{
			name:   "parent scoped entity has no tenant column",
			p:      worker,
			entity: caseNotes,
			fields: store.Fields{"applicant_id": 4, "body": "call back"},
			want:   store.Fields{"applicant_id": 4, "body": "call back", "created_by": "sam", "updated_by": "sam"},
		},
		{
			name:   "tenant keyed by id is not stamped",
			p:      admin,
			entity: centers,
			bypass: true,
			fields: store.Fields{"name": "North"},
			want:   store.Fields{"name": "North", "created_by": "root", "updated_by": "root"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stamp(tt.p, tt.entity, tt.bypass, models.OpCreate, tt.fields)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStampUpdate(t *testing.T) {
	tests := []struct {
		name   string
		p      models.Principal
		bypass bool
		fields store.Fields
		want   store.Fields
	}{
		{
			name:   "created_by stripped and updated_by forced",
			p:      worker,
			fields: store.Fields{"first_name": "Ana", "created_by": "mallory", "updated_by": "mallory"},
			want:   store.Fields{"first_name": "Ana", "updated_by": "sam"},
		},
		{
			name:   "tenant column stripped for non bypass",
			p:      worker,
			fields: store.Fields{"center_id": 9},
			want:   store.Fields{"updated_by": "sam"},
		},
		{
			name:   "bypass retargets tenant",
			p:      admin,
			bypass: true,
			fields: store.Fields{"center_id": "9"},
			want:   store.Fields{"updated_by": "root", "center_id": int64(9)},
		},
		{
			name:   "bypass invalid tenant leaves column untouched",
			p:      admin,
			bypass: true,
			fields: store.Fields{"center_id": "", "first_name": "Bo"},
			want:   store.Fields{"updated_by": "root", "first_name": "Bo"},
		},
		{
			name:   "id is never written",
			p:      worker,
			fields: store.Fields{"id": 2},
			want:   store.Fields{"updated_by": "sam"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stamp(tt.p, applicants, tt.bypass, models.OpUpdate, tt.fields)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStampDoesNotMutateInput(t *testing.T) {
	in := store.Fields{"created_by": "mallory", "center_id": 9}
	_, err := Stamp(worker, applicants, false, models.OpUpdate, in)
	require.NoError(t, err)
	require.Equal(t, store.Fields{"created_by": "mallory", "center_id": 9}, in)
}

func TestStampDeniesPrincipalWithoutTenant(t *testing.T) {
	for _, tenant := range []string{"", "0", "-1", "abc"} {
		p := models.Principal{Role: models.RoleOrgAdmin, HomeTenant: tenant, Username: "kim"}
		for _, op := range []models.Operation{models.OpCreate, models.OpUpdate} {
			_, err := Stamp(p, applicants, false, op, store.Fields{"first_name": "x"})
			require.ErrorIs(t, err, store.ErrDenied, "tenant %q op %s", tenant, op)
		}
	}
}

func TestStampRejectsOperationsWithoutPayload(t *testing.T) {
	_, err := Stamp(worker, applicants, false, models.OpDelete, store.Fields{})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}
