package models

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Game{},
		&GameVersion{},
		&QCReport{},
		&PlayRecord{},
		&AuditEntry{},
	}
}
