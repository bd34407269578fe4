// Package aggregate combines stored session summaries for one meeting into
// a merged table, a metrics-by-session pivot and a weighted difficulty score.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/verte-zerg/keytrace/internal/model"
)

// Format is the meeting deliverable type.
type Format string

// Known formats.
const (
	FormatSYB Format = "SYB"
	FormatSYD Format = "SYD"
	FormatCRS Format = "CRS"
)

// ParseFormat normalizes and validates a format code.
func ParseFormat(value string) (Format, error) {
	f := Format(strings.ToUpper(strings.TrimSpace(value)))
	switch f {
	case FormatSYB, FormatSYD, FormatCRS:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected SYB, SYD or CRS)", value)
	}
}

// Score returns the format difficulty score on the 0-10 scale.
func (f Format) Score() float64 {
	switch f {
	case FormatSYB:
		return 10
	case FormatSYD:
		return 5
	default:
		return 0
	}
}

// MinutesPerAudioMinute is the planned working time per minute of audio.
func (f Format) MinutesPerAudioMinute() float64 {
	switch f {
	case FormatCRS:
		return 3.29
	case FormatSYB:
		return 1.82
	case FormatSYD:
		return 2.5
	default:
		return 1
	}
}

// InvalidIntervalError reports a malformed HH:MM duration.
type InvalidIntervalError struct {
	Value  string
	Reason string
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("invalid duration %q: %s", e.Value, e.Reason)
}

// ParseDuration converts "HH:MM" to minutes.
func ParseDuration(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, &InvalidIntervalError{Value: value, Reason: "expected HH:MM"}
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, &InvalidIntervalError{Value: value, Reason: "hours must be a non-negative integer"}
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, &InvalidIntervalError{Value: value, Reason: "minutes must be between 0 and 59"}
	}
	return hours*60 + minutes, nil
}

// Metadata identifies the meeting the sessions belong to.
type Metadata struct {
	Client        string
	Date          string
	AudioDuration string
	Format        Format
}

// Validate checks that every field is present and well formed.
func (m Metadata) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Client) == "" {
		errs = append(errs, errors.New("client code is required"))
	}
	if strings.TrimSpace(m.Date) == "" {
		errs = append(errs, errors.New("meeting date is required"))
	}
	if _, err := ParseDuration(m.AudioDuration); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseFormat(string(m.Format)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Scores are the operator's 0-10 ratings of the recording.
type Scores struct {
	Noise         int
	Interruptions int
	Complexity    int
}

// Validate checks every score is within 0-10.
func (s Scores) Validate() error {
	var errs []error
	for _, c := range []struct {
		name  string
		value int
	}{
		{CriterionNoise, s.Noise},
		{CriterionInterruptions, s.Interruptions},
		{CriterionComplexity, s.Complexity},
	} {
		if c.value < 0 || c.value > 10 {
			errs = append(errs, fmt.Errorf("%s score %d out of range 0-10", c.name, c.value))
		}
	}
	return errors.Join(errs...)
}

// Criterion names.
const (
	CriterionNoise         = "noise"
	CriterionInterruptions = "interruptions"
	CriterionComplexity    = "complexity"
	CriterionFormat        = "format"
)

const (
	minAudioMinutes = 30
	maxAudioMinutes = 600
	maxScore        = 10
)

var baseWeights = []struct {
	name   string
	weight float64
}{
	{CriterionNoise, 0.15},
	{CriterionInterruptions, 0.15},
	{CriterionFormat, 0.20},
	{CriterionComplexity, 0.30},
}

// Criterion is one weighted component of the evaluation.
type Criterion struct {
	Name     string
	Raw      float64
	Adjusted float64
	Weight   float64
}

// Evaluation is the duration-modulated weighted score.
type Evaluation struct {
	AudioMinutes int
	Factor       float64
	Criteria     []Criterion
	Global       float64
}

// Evaluate scales each raw score by the audio-length factor, caps it at 10
// and combines the results with normalized weights.
func Evaluate(meta Metadata, scores Scores) (Evaluation, error) {
	if err := meta.Validate(); err != nil {
		return Evaluation{}, err
	}
	if err := scores.Validate(); err != nil {
		return Evaluation{}, err
	}
	minutes, _ := ParseDuration(meta.AudioDuration)
	format, _ := ParseFormat(string(meta.Format))

	ratio := float64(minutes-minAudioMinutes) / float64(maxAudioMinutes-minAudioMinutes)
	factor := 1 + math.Max(0, math.Min(ratio, 1))

	raw := map[string]float64{
		CriterionNoise:         float64(scores.Noise),
		CriterionInterruptions: float64(scores.Interruptions),
		CriterionComplexity:    float64(scores.Complexity),
		CriterionFormat:        format.Score(),
	}
	var totalWeight float64
	for _, bw := range baseWeights {
		totalWeight += bw.weight
	}

	eval := Evaluation{AudioMinutes: minutes, Factor: factor}
	for _, bw := range baseWeights {
		c := Criterion{
			Name:     bw.name,
			Raw:      raw[bw.name],
			Adjusted: math.Min(raw[bw.name]*factor, maxScore),
			Weight:   bw.weight / totalWeight,
		}
		eval.Global += c.Adjusted * c.Weight
		eval.Criteria = append(eval.Criteria, c)
	}
	return eval, nil
}

// Metric columns that are not actions.
const (
	ColumnTotalDuration = model.FieldTotalDuration
	ColumnActiveTime    = model.FieldActiveTime
	ColumnActionsPerMin = "actions_per_min"
)

// Row is one session of the merged table. Values holds only present cells.
type Row struct {
	ID      string
	Session string
	Values  map[string]float64
}

// Table is the merged per-session summary.
type Table struct {
	Meta    Metadata
	Columns []string
	Rows    []Row
}

// Merge builds one row per session: duration columns, actions per minute,
// then insertions, deletions and every command seen in any session.
func Merge(meta Metadata, sessions []model.StoredSession) Table {
	commandSet := map[string]struct{}{}
	for _, s := range sessions {
		for cmd := range s.Summary.Commands {
			commandSet[strings.ToLower(cmd)] = struct{}{}
		}
	}
	commands := make([]string, 0, len(commandSet))
	for cmd := range commandSet {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)

	columns := []string{ColumnTotalDuration, ColumnActiveTime, ColumnActionsPerMin, model.FieldInsertions, model.FieldDeletions}
	columns = append(columns, commands...)

	table := Table{Meta: meta, Columns: columns}
	for _, s := range sessions {
		values := s.Summary.Fields()
		var actions float64
		for name, v := range values {
			if name == ColumnTotalDuration || name == ColumnActiveTime {
				continue
			}
			actions += v
		}
		perMin := 0.0
		if total := values[ColumnTotalDuration]; total > 0 {
			perMin = actions / total
		}
		values[ColumnActionsPerMin] = model.Round2(perMin)
		table.Rows = append(table.Rows, Row{ID: s.ID, Session: s.Name, Values: values})
	}
	return table
}

// PivotTable lays metrics out as rows and sessions as columns.
type PivotTable struct {
	Metrics  []string
	Sessions []string
	// Cells[metric][session column index], present only where the session has a value.
	Cells  map[string]map[int]float64
	Totals map[string]float64
}

// Pivot transposes the merged table and totals each metric over present cells.
func Pivot(table Table) PivotTable {
	p := PivotTable{
		Metrics: append([]string(nil), table.Columns...),
		Cells:   map[string]map[int]float64{},
		Totals:  map[string]float64{},
	}
	for _, r := range table.Rows {
		p.Sessions = append(p.Sessions, r.Session)
	}
	for _, metric := range p.Metrics {
		cells := map[int]float64{}
		var total float64
		for i, r := range table.Rows {
			v, ok := r.Values[metric]
			if !ok {
				continue
			}
			cells[i] = v
			total += v
		}
		p.Cells[metric] = cells
		p.Totals[metric] = total
	}
	return p
}

// Diff compares planned and actual working minutes.
type Diff struct {
	Predicted float64
	Actual    float64
	Diff      float64
}

// PlannedDiff returns the planned working time for the audio minus the
// total duration actually spent across sessions.
func PlannedDiff(meta Metadata, table Table) (Diff, error) {
	minutes, err := ParseDuration(meta.AudioDuration)
	if err != nil {
		return Diff{}, err
	}
	format, err := ParseFormat(string(meta.Format))
	if err != nil {
		return Diff{}, err
	}
	d := Diff{Predicted: float64(minutes) * format.MinutesPerAudioMinute()}
	for _, r := range table.Rows {
		d.Actual += r.Values[ColumnTotalDuration]
	}
	d.Diff = d.Predicted - d.Actual
	return d, nil
}
