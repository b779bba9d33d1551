package knowledge

import "fmt"

// seedIfEmpty loads the built-in archetypes and historical problems when the
// base has none.
func (b *Base) seedIfEmpty() error {
	var count int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM archetypes`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count archetypes: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, a := range defaultArchetypes() {
		if err := b.AddArchetype(a); err != nil {
			return err
		}
	}
	for _, p := range defaultProblems() {
		if err := b.AddProblem(p); err != nil {
			return err
		}
	}

	b.logger.Info("seeded knowledge base with built-in archetypes and problems")
	return nil
}

func defaultArchetypes() []Archetype {
	return []Archetype{
		{
			ID:          "optimization",
			Name:        "Optimization",
			Keywords:    []string{"optimize", "minimize", "maximize", "allocation", "routing", "scheduling", "assignment", "cost"},
			Techniques:  []string{"linear programming", "integer programming", "genetic algorithms", "simulated annealing"},
			Description: "Find the best configuration subject to constraints",
		},
		{
			ID:          "dynamical-systems",
			Name:        "Dynamical Systems",
			Keywords:    []string{"population", "growth", "spread", "epidemic", "decay", "rate", "dynamics", "time"},
			Techniques:  []string{"ordinary differential equations", "difference equations", "stability analysis", "phase portraits"},
			Description: "Model quantities evolving over time with differential or difference equations",
		},
		{
			ID:          "network",
			Name:        "Network and Graph Models",
			Keywords:    []string{"network", "graph", "flow", "path", "connectivity", "traffic", "infrastructure", "vehicle"},
			Techniques:  []string{"shortest path", "max flow", "centrality measures", "minimum spanning tree"},
			Description: "Represent entities and relations as graphs and analyze structure or flow",
		},
		{
			ID:          "stochastic",
			Name:        "Stochastic and Statistical Models",
			Keywords:    []string{"probability", "random", "uncertainty", "distribution", "risk", "forecast", "prediction", "data"},
			Techniques:  []string{"Monte Carlo simulation", "Markov chains", "regression", "time series analysis"},
			Description: "Capture randomness and fit models to observed data",
		},
		{
			ID:          "simulation",
			Name:        "Agent-Based Simulation",
			Keywords:    []string{"simulation", "agent", "behavior", "interaction", "crowd", "evacuation", "queue"},
			Techniques:  []string{"discrete event simulation", "cellular automata", "agent-based modeling"},
			Description: "Simulate individual actors whose interactions produce emergent system behavior",
		},
		{
			ID:          "decision",
			Name:        "Multi-Criteria Decision Analysis",
			Keywords:    []string{"ranking", "criteria", "weight", "score", "evaluation", "selection", "policy"},
			Techniques:  []string{"analytic hierarchy process", "TOPSIS", "weighted scoring", "data envelopment analysis"},
			Description: "Rank alternatives against multiple competing criteria",
		},
	}
}

func defaultProblems() []Problem {
	return []Problem{
		{
			ID:       "ambulance-deployment",
			Year:     2018,
			Title:    "Emergency Vehicle Deployment",
			Summary:  "Positioned ambulances across a road network to minimize expected response time under demand uncertainty",
			Methods:  []string{"facility location", "integer programming", "Monte Carlo simulation"},
			Keywords: []string{"routing", "vehicle", "response", "network", "minimize", "emergency", "time"},
		},
		{
			ID:       "epidemic-intervention",
			Year:     2019,
			Title:    "Epidemic Intervention Planning",
			Summary:  "Compared vaccination and quarantine strategies with a compartmental SEIR model and sensitivity analysis",
			Methods:  []string{"SEIR model", "ordinary differential equations", "sensitivity analysis"},
			Keywords: []string{"epidemic", "spread", "population", "rate", "intervention", "dynamics"},
		},
		{
			ID:       "water-allocation",
			Year:     2020,
			Title:    "Regional Water Resource Allocation",
			Summary:  "Allocated scarce water across agricultural and urban users via multi-objective optimization",
			Methods:  []string{"multi-objective optimization", "Pareto frontier", "weighted scoring"},
			Keywords: []string{"allocation", "resource", "optimize", "cost", "policy", "criteria"},
		},
		{
			ID:       "traffic-signal",
			Year:     2021,
			Title:    "Urban Traffic Signal Timing",
			Summary:  "Tuned signal phases on a city grid using a queueing network and discrete event simulation",
			Methods:  []string{"queueing theory", "discrete event simulation", "network flow"},
			Keywords: []string{"traffic", "network", "flow", "queue", "simulation", "minimize", "time"},
		},
		{
			ID:       "wildfire-drones",
			Year:     2022,
			Title:    "Wildfire Surveillance Drone Fleet",
			Summary:  "Sized and scheduled a drone fleet for wildfire detection, balancing coverage against battery constraints",
			Methods:  []string{"set covering", "integer programming", "simulated annealing"},
			Keywords: []string{"coverage", "scheduling", "optimize", "fleet", "constraint", "risk"},
		},
	}
}
