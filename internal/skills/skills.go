package skills

// Category selects which skill list of a document is being processed.
type Category string

const (
	Technical Category = "technical"
	Soft      Category = "soft"
)

// SkillSet is an ordered list of skill names as returned by the extractor.
// Duplicates are possible and names are case-sensitive.
type SkillSet []string

// Clone returns a copy that never aliases the receiver. A nil set clones to an empty one.
func (s SkillSet) Clone() SkillSet {
	out := make(SkillSet, len(s))
	copy(out, s)
	return out
}

// Extraction holds both skill lists extracted from one document.
type Extraction struct {
	Technical SkillSet `json:"technical_skills"`
	Soft      SkillSet `json:"soft_skills"`
}

// Get returns the list for the given category.
func (e Extraction) Get(c Category) SkillSet {
	if c == Soft {
		return e.Soft
	}
	return e.Technical
}

// IsEmpty reports whether nothing was extracted.
func (e Extraction) IsEmpty() bool {
	return len(e.Technical) == 0 && len(e.Soft) == 0
}

// BestMatch is the best target for a single source skill.
type BestMatch struct {
	Source     string  `json:"source"`
	Target     string  `json:"best_match"`
	Similarity float64 `json:"similarity"`
}

// MatchResult keeps one BestMatch per distinct source skill in source order.
type MatchResult struct {
	entries []BestMatch
	index   map[string]int
}

// Put records the best match for a source skill. A repeated source keeps its
// original position and takes the new values.
func (r *MatchResult) Put(m BestMatch) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[m.Source]; ok {
		r.entries[i] = m
		return
	}
	r.index[m.Source] = len(r.entries)
	r.entries = append(r.entries, m)
}

// Lookup returns the best match for a source skill.
func (r MatchResult) Lookup(source string) (BestMatch, bool) {
	i, ok := r.index[source]
	if !ok {
		return BestMatch{}, false
	}
	return r.entries[i], true
}

// Entries returns the matches in source order.
func (r MatchResult) Entries() []BestMatch {
	out := make([]BestMatch, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r MatchResult) Len() int {
	return len(r.entries)
}

// MatchedSkill is a job skill claimed by a resume skill above the threshold.
type MatchedSkill struct {
	JobSkill    string  `json:"job_skill"`
	ResumeSkill string  `json:"resume_skill"`
	Similarity  float64 `json:"similarity"`
}

// Comparison is the final artifact of one analysis.
type Comparison struct {
	MatchedTech []MatchedSkill `json:"matched_tech_skills"`
	MatchedSoft []MatchedSkill `json:"matched_soft_skills"`
	MissingTech SkillSet       `json:"missing_tech_skills"`
	MissingSoft SkillSet       `json:"missing_soft_skills"`
	Suggestions string         `json:"suggestions"`
}

// Normalize replaces nil lists with empty ones so JSON output never carries null lists.
func (c *Comparison) Normalize() {
	if c.MatchedTech == nil {
		c.MatchedTech = []MatchedSkill{}
	}
	if c.MatchedSoft == nil {
		c.MatchedSoft = []MatchedSkill{}
	}
	if c.MissingTech == nil {
		c.MissingTech = SkillSet{}
	}
	if c.MissingSoft == nil {
		c.MissingSoft = SkillSet{}
	}
}
