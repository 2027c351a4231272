// Command aecos is the thin CLI wrapper over the AEC OS facade.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quobo-ops/aecos/internal/aecos"
	"github.com/quobo-ops/aecos/internal/audit"
	"github.com/quobo-ops/aecos/internal/config"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/nlp"
	"github.com/quobo-ops/aecos/internal/template"
)

var (
	flagProject string
	flagUser    string
	flagVerbose bool
)

func openFacade() (*aecos.AecOS, error) {
	var opts []aecos.Option
	if flagUser != "" {
		opts = append(opts, aecos.WithUser(flagUser))
	}
	return aecos.New(flagProject, opts...)
}

func printWarnings(a *aecos.AecOS) {
	for _, w := range a.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

func main() {
	root := &cobra.Command{
		Use:           "aecos",
		Short:         "File-system-backed design object manager for AEC projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if flagVerbose {
				level = "debug"
			}
			return logging.Init("", level)
		},
	}
	root.PersistentFlags().StringVarP(&flagProject, "project", "p", ".", "project root directory")
	root.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "user identity for audit entries")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		initCmd(),
		generateCmd(),
		checkCmd(),
		elementsCmd(),
		templatesCmd(),
		auditCmd(),
		statusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialise a project with a repository, layout, and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := aecos.InitProject(flagProject, name)
			if err != nil {
				return err
			}
			fmt.Printf("initialised project at %s\n", root)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", config.DefaultProject("").Name, "project name")
	return cmd
}

func generateCmd() *cobra.Command {
	var jurisdiction string
	cmd := &cobra.Command{
		Use:   "generate <description>",
		Short: "Run the parse/comply/build/validate/cost/commit pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			var ctx nlp.Context
			if jurisdiction != "" {
				ctx = nlp.Context{"jurisdiction": jurisdiction}
			}
			result, err := a.Generate(args[0], ctx)
			if err != nil {
				return err
			}
			printWarnings(a)
			fmt.Printf("generated %s\n", result.Folder)
			if result.Compliance != nil {
				fmt.Printf("compliance: %s\n", result.Compliance.Verdict)
			}
			if result.Commit != "" {
				fmt.Printf("commit: %s\n", result.Commit)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "jurisdiction context for parsing")
	return cmd
}

func checkCmd() *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "check <element-id>",
		Short: "Check a stored element against the compliance rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.CheckElementCompliance(args[0], region)
			if err != nil {
				return err
			}
			fmt.Println(report.ToMarkdown())
			return nil
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "region filter for applicable rules")
	return cmd
}

func elementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "elements",
		Short: "Element operations",
	}

	var class, material, name string
	list := &cobra.Command{
		Use:   "list",
		Short: "List project elements",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			elems, err := a.ListElements(element.ListFilter{IFCClass: class, Material: material, Name: name})
			if err != nil {
				return err
			}
			for _, e := range elems {
				fmt.Printf("%s\t%s\t%s\n", e.GlobalID, e.IFCClass, e.Name)
			}
			return nil
		},
	}
	list.Flags().StringVar(&class, "class", "", "filter by IFC class")
	list.Flags().StringVar(&material, "material", "", "filter by material substring")
	list.Flags().StringVar(&name, "name", "", "filter by name substring")

	remove := &cobra.Command{
		Use:   "delete <element-id>",
		Short: "Delete an element folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.DeleteElement(args[0])
			if err != nil {
				return err
			}
			printWarnings(a)
			if !deleted {
				return fmt.Errorf("element %s not found", args[0])
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history <element-id>",
		Short: "Show the scoped commit history of an element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.History(args[0], 50)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %s  %s  %s\n", e.Commit, e.Date.Format("2006-01-02 15:04"), e.Author, e.Message)
			}
			return nil
		},
	}

	cmd.AddCommand(list, remove, history)
	return cmd
}

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Template library operations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			for _, e := range a.SearchTemplates(template.Query{}) {
				class := ""
				if e.Tags.IFCClass != nil {
					class = *e.Tags.IFCClass
				}
				fmt.Printf("%s\t%s\t%s\t%s\n", e.TemplateID, class, e.Version, e.Description)
			}
			return nil
		},
	}

	var query string
	search := &cobra.Command{
		Use:   "search",
		Short: "Search templates by keyword",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			for _, e := range a.SearchTemplates(template.Query{Keyword: query}) {
				fmt.Printf("%s\t%s\n", e.TemplateID, e.Description)
			}
			return nil
		},
	}
	search.Flags().StringVarP(&query, "query", "q", "", "keyword across all tag fields")

	promote := &cobra.Command{
		Use:   "promote <element-id>",
		Short: "Promote an element to a reusable template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			dest, err := a.PromoteToTemplate(args[0], "", template.AddParams{})
			if err != nil {
				return err
			}
			printWarnings(a)
			fmt.Printf("promoted to %s\n", dest)
			return nil
		},
	}

	cmd.AddCommand(list, search, promote)
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit chain operations",
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit chain integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			ok, err := a.VerifyAuditChain()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("audit chain verification FAILED")
			}
			fmt.Println("audit chain OK")
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Export the audit trail as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.ExportAuditLog()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	var resource string
	log := &cobra.Command{
		Use:   "log",
		Short: "Query the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.GetAuditLog(audit.Filter{Resource: resource})
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%d\t%s\t%s\t%s\t%s\n", e.ID, e.Timestamp, e.User, e.Action, e.Resource)
			}
			return nil
		},
	}
	log.Flags().StringVar(&resource, "resource", "", "filter by resource id")

	cmd.AddCommand(verify, export, log)
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the working tree status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFacade()
			if err != nil {
				return err
			}
			defer a.Close()

			clean, err := a.IsClean()
			if err != nil {
				return err
			}
			if clean {
				fmt.Println("working tree clean")
				return nil
			}
			status, err := a.Status()
			if err != nil {
				return err
			}
			fmt.Print(status)
			return nil
		},
	}
}
