package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cadre-dev/cadre/pkg/agile"
	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/gate"
	"github.com/cadre-dev/cadre/pkg/handoff"
	"github.com/cadre-dev/cadre/pkg/registry"
	"github.com/cadre-dev/cadre/pkg/team"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/spf13/cobra"
)

// Team commands
var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage agent teams",
}

var teamFormCmd = &cobra.Command{
	Use:   "form",
	Short: "Form a new team",
	RunE: func(cmd *cobra.Command, args []string) error {
		mission, _ := cmd.Flags().GetString("mission")
		size, _ := cmd.Flags().GetInt("size")
		skills, _ := cmd.Flags().GetStringSlice("skills")
		name, _ := cmd.Flags().GetString("name")
		teamType, _ := cmd.Flags().GetString("type")

		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		required := make([]types.Skill, 0, len(skills))
		for _, s := range skills {
			required = append(required, types.Skill(strings.TrimSpace(s)))
		}

		formed, err := c.teams.FormTeam(team.FormationRequest{
			Name:           name,
			Type:           types.TeamType(teamType),
			Mission:        mission,
			Size:           size,
			RequiredSkills: required,
		})
		if err != nil {
			return err
		}

		fmt.Println(formed.ID)
		return nil
	},
}

var teamDissolveCmd = &cobra.Command{
	Use:   "dissolve ID",
	Short: "Dissolve a team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		if err := c.teams.DissolveTeam(args[0], reason); err != nil {
			return err
		}
		fmt.Printf("✓ Team %s dissolved\n", args[0])
		return nil
	},
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active teams",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		teams := c.teams.ListTeams()
		if len(teams) == 0 {
			fmt.Println("No active teams")
			return nil
		}
		fmt.Printf("%-36s  %-16s  %-10s  %-7s  %s\n", "ID", "TYPE", "STATE", "MEMBERS", "MISSION")
		for _, t := range teams {
			fmt.Printf("%-36s  %-16s  %-10s  %-7d  %s\n",
				t.ID, t.Type, t.State, len(t.Members), t.Mission)
		}
		return nil
	},
}

func init() {
	teamCmd.AddCommand(teamFormCmd)
	teamCmd.AddCommand(teamDissolveCmd)
	teamCmd.AddCommand(teamListCmd)

	teamFormCmd.Flags().String("mission", "", "Team mission statement")
	teamFormCmd.Flags().Int("size", 3, "Number of agents")
	teamFormCmd.Flags().StringSlice("skills", nil, "Required skills (comma separated)")
	teamFormCmd.Flags().String("name", "", "Team name")
	teamFormCmd.Flags().String("type", string(types.TeamTypeCrossFunctional), "Team type")
	teamFormCmd.MarkFlagRequired("mission")

	teamDissolveCmd.Flags().String("reason", "requested", "Dissolution reason")
}

// Document commands
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage registry documents",
}

var docCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new document",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		docType, _ := cmd.Flags().GetString("type")
		workflowID, _ := cmd.Flags().GetString("workflow")
		teamID, _ := cmd.Flags().GetString("team")
		owner, _ := cmd.Flags().GetString("owner")
		contentFile, _ := cmd.Flags().GetString("content")

		var content []byte
		if contentFile != "" {
			var err error
			content, err = os.ReadFile(contentFile)
			if err != nil {
				return errdefs.InvalidArgument("failed to read content file: %v", err)
			}
		}

		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		doc, err := c.registry.Create(registry.CreateRequest{
			Title:      title,
			Type:       types.DocumentType(docType),
			Content:    content,
			Owner:      owner,
			WorkflowID: workflowID,
			TeamID:     teamID,
		})
		if err != nil {
			return err
		}
		fmt.Println(doc.ID)
		return nil
	},
}

var docVersionsCmd = &cobra.Command{
	Use:   "versions ROOT-ID",
	Short: "List a document's version chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		versions, err := c.registry.Versions(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%-36s  %-8s  %-12s  %s\n", "ID", "VERSION", "STATUS", "UPDATED")
		for _, v := range versions {
			fmt.Printf("%-36s  %-8d  %-12s  %s\n",
				v.ID, v.Version, v.Status, v.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var docExportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Export a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		requester, _ := cmd.Flags().GetString("as")

		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		data, err := c.registry.Export(args[0], requester, registry.ExportFormat(format))
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	docCmd.AddCommand(docCreateCmd)
	docCmd.AddCommand(docVersionsCmd)
	docCmd.AddCommand(docExportCmd)

	docCreateCmd.Flags().String("title", "", "Document title")
	docCreateCmd.Flags().String("type", string(types.DocTypeOther), "Document type")
	docCreateCmd.Flags().String("workflow", "", "Workflow binding")
	docCreateCmd.Flags().String("team", "", "Team binding")
	docCreateCmd.Flags().String("owner", "cli", "Owning agent id")
	docCreateCmd.Flags().String("content", "", "Path to a content file")
	docCreateCmd.MarkFlagRequired("title")

	docExportCmd.Flags().String("format", string(registry.FormatJSON), "Export format (json, yaml, markdown)")
	docExportCmd.Flags().String("as", registry.System, "Requesting agent id")
}

// Handoff commands
var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Manage document handoffs",
}

var handoffCreateCmd = &cobra.Command{
	Use:   "create DOC-ID",
	Short: "Create a handoff",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		from, _ := cmd.Flags().GetString("from")
		reason, _ := cmd.Flags().GetString("reason")
		priority, _ := cmd.Flags().GetInt("priority")
		deadline, _ := cmd.Flags().GetString("deadline")
		action, _ := cmd.Flags().GetString("action")

		deadlineTS, err := parseTimestamp(deadline)
		if err != nil {
			return err
		}

		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		h, err := c.handoffs.Create(handoff.CreateRequest{
			DocumentID:     args[0],
			FromAgent:      from,
			ToAgent:        to,
			Reason:         reason,
			ExpectedAction: types.ExpectedAction(action),
			Priority:       types.HandoffPriority(priority),
			Deadline:       deadlineTS,
		})
		if err != nil {
			return err
		}
		fmt.Println(h.ID)
		return nil
	},
}

var handoffListCmd = &cobra.Command{
	Use:   "list AGENT-ID",
	Short: "List an agent's handoff queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		queue := c.handoffs.Queue(args[0])
		if len(queue) == 0 {
			fmt.Println("No pending handoffs")
			return nil
		}
		fmt.Printf("%-36s  %-10s  %-8s  %s\n", "ID", "STATE", "PRIORITY", "DOCUMENT")
		for _, h := range queue {
			fmt.Printf("%-36s  %-10s  %-8s  %s\n", h.ID, h.State, h.Priority, h.DocumentID)
		}
		return nil
	},
}

func init() {
	handoffCmd.AddCommand(handoffCreateCmd)
	handoffCmd.AddCommand(handoffListCmd)

	handoffCreateCmd.Flags().String("to", "", "Recipient agent id")
	handoffCreateCmd.Flags().String("from", handoff.System, "Sending agent id")
	handoffCreateCmd.Flags().String("reason", "", "Handoff reason")
	handoffCreateCmd.Flags().Int("priority", int(types.PriorityMedium), "Priority 1 (low) to 4 (critical)")
	handoffCreateCmd.Flags().String("deadline", "", "Deadline (RFC3339)")
	handoffCreateCmd.Flags().String("action", string(types.ActionReview), "Expected action")
	handoffCreateCmd.MarkFlagRequired("to")
	handoffCreateCmd.MarkFlagRequired("reason")
}

// Gate commands
var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run quality gates",
}

var gateEvaluateCmd = &cobra.Command{
	Use:   "evaluate GATE-NAME",
	Short: "Evaluate a quality gate against a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		assessor, _ := cmd.Flags().GetString("as")
		markdown, _ := cmd.Flags().GetBool("markdown")

		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		report, err := c.gates.Evaluate(args[0], target, assessor, nil)
		if err != nil {
			return err
		}

		if markdown {
			fmt.Print(string(gate.RenderMarkdown(report)))
			return nil
		}
		data, err := gate.RenderJSON(report)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	gateCmd.AddCommand(gateEvaluateCmd)

	gateEvaluateCmd.Flags().String("target", "", "Target document or reference")
	gateEvaluateCmd.Flags().String("as", "cli", "Assessor id")
	gateEvaluateCmd.Flags().Bool("markdown", false, "Render the report as markdown")
	gateEvaluateCmd.MarkFlagRequired("target")
}

// Sprint commands
var sprintCmd = &cobra.Command{
	Use:   "sprint",
	Short: "Sprint analytics",
}

var sprintForecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast velocity from sprint history",
	RunE: func(cmd *cobra.Command, args []string) error {
		historyFlag, _ := cmd.Flags().GetString("history")
		sprints, _ := cmd.Flags().GetInt("sprints")
		holiday, _ := cmd.Flags().GetFloat64("holiday")
		sizeChange, _ := cmd.Flags().GetFloat64("size-change")
		newMembers, _ := cmd.Flags().GetInt("new-members")

		history, err := parseFloats(historyFlag)
		if err != nil {
			return err
		}

		prediction, err := agile.PredictVelocity(history, sprints, agile.CapacityAdjustment{
			HolidayFactor:    holiday,
			SizeChangeFactor: sizeChange,
			NewMemberCount:   newMembers,
		}, 0)
		if err != nil {
			return err
		}

		fmt.Printf("Predicted velocity: %.1f points (trend: %s, %d sprints of history)\n",
			prediction.Predicted, prediction.Trend, prediction.Samples)
		fmt.Printf("95%% interval: [%.1f, %.1f]\n", prediction.Low, prediction.High)
		fmt.Printf("Confidence: %.0f%%\n", prediction.Confidence*100)
		return nil
	},
}

var sprintTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Classify the trend of a metric series",
	RunE: func(cmd *cobra.Command, args []string) error {
		valuesFlag, _ := cmd.Flags().GetString("values")
		values, err := parseFloats(valuesFlag)
		if err != nil {
			return err
		}

		trend, slope := agile.AnalyzeTrend(values)
		fmt.Printf("%s (slope %.3f per sprint)\n", trend, slope)
		return nil
	},
}

// parseFloats splits a comma-separated list of numbers
func parseFloats(value string) ([]float64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, errdefs.InvalidArgument("no values given")
	}
	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errdefs.InvalidArgument("bad number %q: %v", part, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func init() {
	sprintCmd.AddCommand(sprintForecastCmd)
	sprintCmd.AddCommand(sprintTrendCmd)

	sprintForecastCmd.Flags().String("history", "", "Completed points per sprint (comma separated)")
	sprintForecastCmd.Flags().Int("sprints", 1, "Sprints ahead to forecast")
	sprintForecastCmd.Flags().Float64("holiday", 0, "Fraction of capacity lost to holidays")
	sprintForecastCmd.Flags().Float64("size-change", 0, "Relative team size change, e.g. 0.2")
	sprintForecastCmd.Flags().Int("new-members", 0, "Members still ramping up")
	sprintForecastCmd.MarkFlagRequired("history")

	sprintTrendCmd.Flags().String("values", "", "Metric values oldest first (comma separated)")
	sprintTrendCmd.MarkFlagRequired("values")
}

// Agent commands
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect the agent pool",
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents in the pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd)
		if err != nil {
			return err
		}
		defer c.close()

		agents := c.pool.ListAgents()
		fmt.Printf("%-36s  %-12s  %-12s  %-6s  %s\n", "ID", "PROFILE", "STATE", "PERF", "SKILLS")
		for _, a := range agents {
			skills := make([]string, 0, len(a.Skills))
			for _, s := range a.Skills {
				skills = append(skills, string(s))
			}
			fmt.Printf("%-36s  %-12s  %-12s  %-6.2f  %s\n",
				a.ID, a.Profile, a.State, a.PerformanceScore, strings.Join(skills, ","))
		}
		return nil
	},
}

func init() {
	agentCmd.AddCommand(agentListCmd)
}
