package models

// FacultyPreference is one entry of a project's ranked faculty list.
// Position is 0-based and matches Project.CurrentPreferenceIndex.
type FacultyPreference struct {
	ProjectID uint64 `gorm:"primarykey" json:"project_id"`
	Position  int    `gorm:"primarykey;autoIncrement:false" json:"position"`
	FacultyID uint64 `gorm:"not null;index" json:"faculty_id"`

	// Relations
	Faculty User `gorm:"foreignKey:FacultyID" json:"faculty,omitempty"`
}
