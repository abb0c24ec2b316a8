package catalog

import "github.com/wolfeidau/caseguard/internal/models"

func defaultEntities() []models.Entity {
	direct := models.Direct(TenantColumn)

	centers := models.Entity{
		Name: "centers", Table: "centers", IDColumn: "id",
		Class:   models.ClassCenterManagement,
		Tenancy: models.Direct("id"),
		Columns: []string{"name", "address", "phone", "email"},
	}

	users := models.Entity{
		Name: "users", Table: "users", IDColumn: "id",
		Class:         models.ClassStaff,
		Tenancy:       direct,
		Columns:       []string{"username", "email", "full_name", "user_type", "is_active"},
		SubtypeColumn: "user_type",
	}

	employees := models.Entity{
		Name: "employees", Table: "employees", IDColumn: "id",
		Class:   models.ClassStaff,
		Tenancy: direct,
		Columns: []string{"first_name", "last_name", "position", "email", "phone", "hire_date"},
	}

	applicants := models.Entity{
		Name: "applicants", Table: "applicants", IDColumn: "id",
		Class:   models.ClassCaseRecords,
		Tenancy: direct,
		Columns: []string{"first_name", "last_name", "date_of_birth", "phone", "email", "address", "status"},
	}

	caseNotes := models.Entity{
		Name: "case_notes", Table: "case_notes", IDColumn: "id",
		Class:   models.ClassCaseRecords,
		Tenancy: models.JoinedThrough(applicants, "applicant_id"),
		Columns: []string{"applicant_id", "note_type", "body"},
	}

	signatures := models.Entity{
		Name: "signatures", Table: "signatures", IDColumn: "id",
		Class:   models.ClassCaseRecords,
		Tenancy: models.ExistsThrough(applicants, "applicant_id"),
		Columns: []string{"applicant_id", "signer_name", "signature_data"},
		Binary:  &models.BinaryField{Column: "signature_data"},
	}

	files := models.Entity{
		Name: "files", Table: "files", IDColumn: "id",
		Class:   models.ClassCaseRecords,
		Tenancy: direct,
		Columns: []string{"file_name", "mime_type", "file_data", "description"},
		Binary:  &models.BinaryField{Column: "file_data", NameColumn: "file_name", TypeColumn: "mime_type"},
	}

	inventory := models.Entity{
		Name: "inventory_items", Table: "inventory_items", IDColumn: "id",
		Class:   models.ClassOperations,
		Tenancy: direct,
		Columns: []string{"name", "sku", "quantity", "unit"},
	}

	suppliers := models.Entity{
		Name: "suppliers", Table: "suppliers", IDColumn: "id",
		Class:   models.ClassOperations,
		Tenancy: direct,
		Columns: []string{"name", "contact_name", "phone", "email"},
	}

	conversations := models.Entity{
		Name: "conversations", Table: "conversations", IDColumn: "id",
		Class:   models.ClassCommunications,
		Tenancy: direct,
		Columns: []string{"subject"},
	}

	messages := models.Entity{
		Name: "conversation_messages", Table: "conversation_messages", IDColumn: "id",
		Class:   models.ClassCommunications,
		Tenancy: models.JoinedThrough(conversations, "conversation_id"),
		Columns: []string{"conversation_id", "sender", "body"},
	}

	meetings := models.Entity{
		Name: "meetings", Table: "meetings", IDColumn: "id",
		Class:   models.ClassCommunications,
		Tenancy: direct,
		Columns: []string{"title", "starts_at", "location", "notes"},
	}

	attendees := models.Entity{
		Name: "meeting_attendees", Table: "meeting_attendees", IDColumn: "id",
		Class:   models.ClassCommunications,
		Tenancy: models.ExistsThrough(meetings, "meeting_id"),
		Columns: []string{"meeting_id", "attendee_name", "attendee_role"},
	}

	return []models.Entity{
		centers, users, employees,
		applicants, caseNotes, signatures, files,
		inventory, suppliers,
		conversations, messages, meetings, attendees,
	}
}
