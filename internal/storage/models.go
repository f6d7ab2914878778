package storage

import (
	"time"

	"gorm.io/datatypes"

	"github.com/spigell/resume-gpt/internal/skills"
)

// Resume is a resume uploaded by a user. Content holds the decoded text.
type Resume struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Content   string    `gorm:"type:longtext"`
	FilePath  string    `gorm:"type:varchar(1024)"`
	UserID    uint      `gorm:"not null;index:idx_resumes_user_id"`
	CreatedAt time.Time `gorm:"type:datetime(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6)"`
}

func (Resume) TableName() string {
	return "resumes"
}

// ResumeAnalysis is one stored comparison of a resume against a job description.
// Rows are append-only.
type ResumeAnalysis struct {
	ID                uint                                      `gorm:"primaryKey"`
	JobDescription    string                                    `gorm:"type:text;not null"`
	MatchedTechSkills datatypes.JSONType[[]skills.MatchedSkill] `gorm:"type:json"`
	MatchedSoftSkills datatypes.JSONType[[]skills.MatchedSkill] `gorm:"type:json"`
	MissingTechSkills datatypes.JSONType[skills.SkillSet]       `gorm:"type:json"`
	MissingSoftSkills datatypes.JSONType[skills.SkillSet]       `gorm:"type:json"`
	Suggestions       string                                    `gorm:"type:text"`
	UserID            uint                                      `gorm:"not null;index:idx_analyses_user_created,priority:1"`
	ResumeID          uint                                      `gorm:"not null;index:idx_analyses_resume_id"`
	CreatedAt         time.Time                                 `gorm:"type:datetime(6);index:idx_analyses_user_created,priority:2"`

	Resume *Resume `gorm:"foreignKey:ResumeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ResumeAnalysis) TableName() string {
	return "resume_analyses"
}

// NewAnalysis builds a row from a finished comparison.
func NewAnalysis(userID, resumeID uint, jobDescription string, cmp *skills.Comparison) *ResumeAnalysis {
	c := *cmp
	c.Normalize()

	return &ResumeAnalysis{
		JobDescription:    jobDescription,
		MatchedTechSkills: datatypes.NewJSONType(c.MatchedTech),
		MatchedSoftSkills: datatypes.NewJSONType(c.MatchedSoft),
		MissingTechSkills: datatypes.NewJSONType(c.MissingTech),
		MissingSoftSkills: datatypes.NewJSONType(c.MissingSoft),
		Suggestions:       c.Suggestions,
		UserID:            userID,
		ResumeID:          resumeID,
	}
}

// Comparison decodes the stored skill lists.
func (a *ResumeAnalysis) Comparison() *skills.Comparison {
	cmp := &skills.Comparison{
		MatchedTech: a.MatchedTechSkills.Data(),
		MatchedSoft: a.MatchedSoftSkills.Data(),
		MissingTech: a.MissingTechSkills.Data(),
		MissingSoft: a.MissingSoftSkills.Data(),
		Suggestions: a.Suggestions,
	}
	cmp.Normalize()
	return cmp
}
