package extractors

import (
	"regexp"
	"slices"
	"sort"
	"strconv"

	"github.com/miradorstack/mirador-diagnose/internal/models"
)

const maxClusterExamples = 3

var (
	labelledErrorPattern = regexp.MustCompile(`(?i)top errors?: ['"]([^'"]+)['"] \((\d+)x?\)`)
	genericErrorPattern  = regexp.MustCompile(`['"]([^'"]+)['"] \((\d+)x?\)`)
)

// RawError is a message/count pair lifted from a collector summary.
type RawError struct {
	Source  string
	Message string
	Count   int
}

// ErrorClusterer groups error messages by their normalized pattern.
type ErrorClusterer struct{}

// NewErrorClusterer constructs an ErrorClusterer.
func NewErrorClusterer() *ErrorClusterer {
	return &ErrorClusterer{}
}

// ExtractErrors pulls message/count pairs out of successful sources. Every
// labelled "top error" match is kept; generic quoted matches only add messages
// not already captured for the same source.
func (c *ErrorClusterer) ExtractErrors(sources []models.CollectedDataEntry) []RawError {
	raw := make([]RawError, 0)
	for _, source := range sources {
		if !source.Succeeded() {
			continue
		}
		captured := make(map[string]struct{})
		for _, pattern := range []*regexp.Regexp{labelledErrorPattern, genericErrorPattern} {
			generic := pattern == genericErrorPattern
			for _, match := range pattern.FindAllStringSubmatch(source.Summary, -1) {
				message := match[1]
				if _, dup := captured[message]; dup && generic {
					continue
				}
				count, err := strconv.Atoi(match[2])
				if err != nil {
					continue
				}
				captured[message] = struct{}{}
				raw = append(raw, RawError{Source: source.SourceName, Message: message, Count: count})
			}
		}
	}
	return raw
}

// Cluster extracts and groups errors, returning clusters sorted by count descending.
// Clusters with equal counts keep first-seen order.
func (c *ErrorClusterer) Cluster(sources []models.CollectedDataEntry) []models.ErrorCluster {
	return c.Group(c.ExtractErrors(sources))
}

// Group folds raw errors into clusters keyed by Normalize(message).
func (c *ErrorClusterer) Group(raw []RawError) []models.ErrorCluster {
	index := make(map[string]int)
	clusters := make([]models.ErrorCluster, 0)
	members := make([][]string, 0)

	for _, item := range raw {
		pattern := Normalize(item.Message)
		i, ok := index[pattern]
		if !ok {
			i = len(clusters)
			index[pattern] = i
			clusters = append(clusters, models.ErrorCluster{
				Pattern:  pattern,
				Examples: []string{},
				Sources:  []string{},
			})
			members = append(members, nil)
		}
		cluster := &clusters[i]
		cluster.Count += item.Count
		members[i] = append(members[i], item.Message)
		if len(cluster.Examples) < maxClusterExamples {
			cluster.Examples = append(cluster.Examples, item.Message)
		}
		if !slices.Contains(cluster.Sources, item.Source) {
			cluster.Sources = append(cluster.Sources, item.Source)
		}
	}

	for i := range clusters {
		clusters[i].StackTrace = clusterStackTrace(members[i])
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Count > clusters[j].Count
	})
	return clusters
}

// clusterStackTrace uses the first member message carrying file:line frames. The
// normalized pattern cannot be used because line numbers are masked.
func clusterStackTrace(messages []string) *string {
	for _, message := range messages {
		if trace, ok := ExtractStackTrace(message); ok {
			return &trace
		}
	}
	return nil
}
