package matching

import (
	"strconv"
	"strings"

	"alfredoptarigan/consultant-matcher/internal/models"
)

// JobText is the text a job description is embedded and prompted with.
func JobText(job *models.JobDescription) string {
	var b strings.Builder
	b.WriteString("Title: " + job.Title + "\n")
	b.WriteString("Skills: " + strings.Join(job.Skills, ", ") + "\n")
	b.WriteString("Experience Required: " + strconv.Itoa(job.ExperienceRequired) + " years\n")
	b.WriteString("Description: " + job.Description)
	return b.String()
}
