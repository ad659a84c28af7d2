package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/spf13/cobra"
)

// taskOps are the state toggles shared by tasks and priority levels.
var taskOps = []struct {
	name  string
	short string
}{
	{"activate", "Activate"},
	{"deactivate", "Deactivate"},
	{"monitor", "Monitor"},
	{"demonitor", "Stop monitoring"},
}

var (
	taskPriority   uint
	taskActive     bool
	taskVisible    bool
	taskMonitored  bool
	taskDefinition string
	taskDynamics   string
	removeAll      bool
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"task"},
	Short:   "Manage controller tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tasks by priority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		tasks, err := newClient().Tasks(ctx)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tasks registered.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), tasksTable(tasks))
		return nil
	},
}

var tasksSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Register or replace a task",
	Long: `Register a task, or replace the task with the same name.

Definition and dynamics are given as space-separated words, the first
naming the type.

Examples:
  tsctl tasks set home --priority 2 --active --def "TDefFullPose" --dyn "TDynFirstOrder 0.5"
  tsctl tasks set j1 --active --def "TDefJntConfig link1 0.0" --dyn "TDynMinJerk 2.0"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := manager.TaskSpec{
			Name:       args[0],
			Priority:   taskPriority,
			Active:     taskActive,
			Visible:    taskVisible,
			Monitored:  taskMonitored,
			Definition: strings.Fields(taskDefinition),
			Dynamics:   strings.Fields(taskDynamics),
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := newClient().SetTask(ctx, spec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %q set at priority %d\n", spec.Name, spec.Priority)
		return nil
	},
}

var tasksRemoveCmd = &cobra.Command{
	Use:     "rm [NAME]",
	Aliases: []string{"remove"},
	Short:   "Remove a task, or every task with --all",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		client := newClient()
		switch {
		case removeAll && len(args) == 0:
			if err := client.RemoveAllTasks(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All tasks removed")
			return nil
		case !removeAll && len(args) == 1:
			if err := client.RemoveTask(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %q removed\n", args[0])
			return nil
		default:
			return fmt.Errorf("give either a task name or --all")
		}
	},
}

var levelsCmd = &cobra.Command{
	Use:     "levels",
	Aliases: []string{"level"},
	Short:   "Operate on every task at a priority level",
}

var levelsRemoveCmd = &cobra.Command{
	Use:     "rm PRIORITY",
	Aliases: []string{"remove"},
	Short:   "Remove every task at a priority",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := parsePriority(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := newClient().RemoveLevel(ctx, priority); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Priority level %d removed\n", priority)
		return nil
	},
}

func parsePriority(s string) (uint, error) {
	p, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid priority %q: must be a non-negative integer", s)
	}
	return uint(p), nil
}

func taskOpCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " NAME",
		Short: short + " a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if err := newClient().TaskOp(ctx, args[0], op); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %q: %s\n", args[0], op)
			return nil
		},
	}
}

func levelOpCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " PRIORITY",
		Short: short + " every task at a priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := parsePriority(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if err := newClient().LevelOp(ctx, priority, op); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Priority level %d: %s\n", priority, op)
			return nil
		},
	}
}

func init() {
	tasksSetCmd.Flags().UintVarP(&taskPriority, "priority", "p", 0, "priority level (0 is highest)")
	tasksSetCmd.Flags().BoolVar(&taskActive, "active", false, "include the task in the control law")
	tasksSetCmd.Flags().BoolVar(&taskVisible, "visible", false, "render the task's primitives")
	tasksSetCmd.Flags().BoolVar(&taskMonitored, "monitored", false, "report the task's measures")
	tasksSetCmd.Flags().StringVar(&taskDefinition, "def", "", "task definition words")
	tasksSetCmd.Flags().StringVar(&taskDynamics, "dyn", "", "task dynamics words")
	_ = tasksSetCmd.MarkFlagRequired("def")
	_ = tasksSetCmd.MarkFlagRequired("dyn")

	tasksRemoveCmd.Flags().BoolVar(&removeAll, "all", false, "remove every task")

	tasksCmd.AddCommand(tasksListCmd, tasksSetCmd, tasksRemoveCmd)
	levelsCmd.AddCommand(levelsRemoveCmd)
	for _, op := range taskOps {
		tasksCmd.AddCommand(taskOpCmd(op.name, op.short))
		levelsCmd.AddCommand(levelOpCmd(op.name, op.short))
	}
	rootCmd.AddCommand(tasksCmd, levelsCmd)
}
