package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

var validate = validator.New()

// Validate checks s eagerly and collects every problem instead of stopping at
// the first one. On success the derived fields (night window) are set.
func (s *Settings) Validate() error {
	var problems []string

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ConfigError{Type: ErrValidation, Message: "cannot validate settings", Err: err}
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	night, err := ParseNightWindow(s.NightBegin, s.NightEnd)
	if err != nil {
		problems = append(problems, err.Error())
	}

	sensors := make(map[string]bool, len(s.Plants))
	for _, p := range s.Plants {
		if sensors[p.Sensor] {
			problems = append(problems, fmt.Sprintf("plants: duplicate sensor %q", p.Sensor))
		}
		sensors[p.Sensor] = true
		problems = append(problems, checkProfile(p)...)
	}

	for c, cs := range s.Alerts.Classes {
		if !c.Known() {
			problems = append(problems, fmt.Sprintf("alerts.classes: unknown alert class %q", c))
		}
		if !cs.Mode.Valid() {
			problems = append(problems, fmt.Sprintf("alerts.classes.%s: unknown alert mode %d", c, int(cs.Mode)))
		}
		if cs.Floor != "" {
			if _, err := entities.ParseSeverity(cs.Floor); err != nil {
				problems = append(problems, fmt.Sprintf("alerts.classes.%s.floor: %v", c, err))
			}
		}
		if cs.DeferTime < 0 || cs.RepeatTime < 0 {
			problems = append(problems, fmt.Sprintf("alerts.classes.%s: negative duration", c))
		}
	}

	pumps := make(map[string]bool, len(s.Pumps))
	for _, pc := range s.Pumps {
		if pumps[pc.Name] {
			problems = append(problems, fmt.Sprintf("pumps: duplicate pump %q", pc.Name))
		}
		pumps[pc.Name] = true
		for _, sn := range pc.Sensors {
			if !sensors[sn] {
				problems = append(problems, fmt.Sprintf("pumps.%s: unknown sensor %q", pc.Name, sn))
			}
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Type: ErrValidation, Message: "invalid settings", Problems: problems}
	}
	s.night = night
	return nil
}

func checkProfile(p entities.PlantProfile) []string {
	var out []string
	for _, m := range p.Metrics {
		if !m.Known() {
			out = append(out, fmt.Sprintf("plants.%s: unknown metric %q", p.Sensor, m))
		}
	}
	for _, m := range []entities.Metric{
		entities.MetricTemperature, entities.MetricConductivity,
		entities.MetricMoisture, entities.MetricLight,
	} {
		b := p.BoundsFor(m)
		chain := []*float64{b.Min, b.Max}
		names := []string{"min", "max"}
		if m == entities.MetricMoisture {
			chain = []*float64{b.Min, b.Lo, b.Hi, b.Max}
			names = []string{"min", "lo", "hi", "max"}
		} else if b.Lo != nil || b.Hi != nil {
			out = append(out, fmt.Sprintf("plants.%s.%s: lo/hi are only defined for moisture", p.Sensor, m))
		}
		if m != entities.MetricLight && b.Irr != nil {
			out = append(out, fmt.Sprintf("plants.%s.%s: irr is only defined for light", p.Sensor, m))
		}
		// Every configured bound must not be below an earlier configured one.
		for i := 0; i < len(chain); i++ {
			for j := i + 1; j < len(chain); j++ {
				if chain[i] != nil && chain[j] != nil && *chain[i] > *chain[j] {
					out = append(out, fmt.Sprintf("plants.%s.%s: inverted bounds %s=%v > %s=%v",
						p.Sensor, m, names[i], *chain[i], names[j], *chain[j]))
				}
			}
		}
	}
	return out
}
