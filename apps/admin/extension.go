package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/user"
)

// operator is the CLI user: it sees every request.
var operator = user.User{Name: "admin cli", Roles: []string{user.RoleAdmin}}

func (cli *commandLine) listRequests(ctx context.Context, status extension.Status) error {
	requests, err := cli.extensionSvc.Query(
		ctx,
		extension.QueryFilter{Status: status},
		[]core.DBOrdering{{Field: "created_at", Ascending: true}},
		operator,
	)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tMATERIAL\tSTUDENT\tCREATED\tREASON")
	for _, r := range requests {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.MaterialID, r.StudentID, r.CreatedAt.Format(time.RFC3339), r.Reason)
	}
	return w.Flush()
}

func (cli *commandLine) decide(ctx context.Context, requestID, approverUname string, approve bool) error {
	approver, err := cli.findUser(ctx, approverUname, isApprover, "a teacher or an admin")
	if err != nil {
		return err
	}
	r, err := cli.extensionSvc.Decide(ctx, extension.Decision{RequestID: requestID, Approve: approve}, approver)
	if err != nil {
		return errors.Wrap(err, "deciding")
	}
	_, _ = fmt.Fprintf(cli.out, "request %s %s by %s\n", r.ID, r.Status, approver.DisplayName())
	return nil
}
