package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/proof-credential-registry/api/clients"
	"github.com/ruteri/proof-credential-registry/cmd/flags"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/urfave/cli/v2"
)

var flagServerAddr *cli.StringFlag = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Registry server address to request",
}

var flagWait *cli.BoolFlag = &cli.BoolFlag{
	Name:  "wait",
	Usage: "Block until the submission is confirmed or failed",
}

var flagTimeout *cli.DurationFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
	Usage: "Maximum time to wait for finality",
}

const usage string = `Submit attendance proofs and query the credential registry`

func main() {
	app := &cli.App{
		Name:  "registry-client",
		Usage: usage,
		Flags: []cli.Flag{
			flagServerAddr,
			flags.PrincipalFlag,
		},
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Submit a proof for an event",
				ArgsUsage: "<event-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "proof", Usage: "hex encoded proof bytes"},
					&cli.StringFlag{Name: "witness", Usage: "private input the server proves with when --proof is empty"},
					flagWait,
					flagTimeout,
				},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					proof, err := decodeHex(cCtx.String("proof"))
					if err != nil {
						return fmt.Errorf("could not parse proof: %w", err)
					}
					handle, err := c.SubmitProof(cCtx.Context, cCtx.Args().First(), proof, []byte(cCtx.String("witness")))
					if err != nil {
						return err
					}
					return finish(cCtx, c, handle)
				},
			},
			{
				Name:      "validate",
				Usage:     "Accept or reject a submitted proof",
				ArgsUsage: "<proof-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reject", Usage: "Mark the proof invalid"},
					flagWait,
					flagTimeout,
				},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					id, err := parseProofID(cCtx.Args().First())
					if err != nil {
						return err
					}
					handle, err := c.ValidateProof(cCtx.Context, id, !cCtx.Bool("reject"))
					if err != nil {
						return err
					}
					return finish(cCtx, c, handle)
				},
			},
			{
				Name:      "set-metadata",
				Usage:     "Set display metadata for an event",
				ArgsUsage: "<event-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "image"},
					&cli.StringFlag{Name: "location"},
					&cli.StringFlag{Name: "date"},
					flagWait,
					flagTimeout,
				},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					handle, err := c.SetEventMetadata(cCtx.Context, interfaces.EventMetadata{
						EventID:     cCtx.Args().First(),
						DisplayName: cCtx.String("name"),
						Description: cCtx.String("description"),
						ImageRef:    cCtx.String("image"),
						Location:    cCtx.String("location"),
						EventDate:   cCtx.String("date"),
					})
					if err != nil {
						return err
					}
					return finish(cCtx, c, handle)
				},
			},
			{
				Name:      "proof",
				Usage:     "Show a proof record",
				ArgsUsage: "<proof-id>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					id, err := parseProofID(cCtx.Args().First())
					if err != nil {
						return err
					}
					record, err := c.Proof(cCtx.Context, id)
					if err != nil {
						return err
					}
					return printJSON(record)
				},
			},
			{
				Name:  "proofs",
				Usage: "List proof ids by submitter or by event",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "submitter", Usage: "submitter address"},
					&cli.StringFlag{Name: "event", Usage: "event id"},
				},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					var ids []interfaces.ProofID
					switch {
					case cCtx.String("event") != "":
						ids, err = c.EventProofs(cCtx.Context, cCtx.String("event"))
					case cCtx.String("submitter") != "":
						submitter, perr := interfaces.NewPrincipalFromHex(cCtx.String("submitter"))
						if perr != nil {
							return fmt.Errorf("could not parse submitter: %w", perr)
						}
						ids, err = c.UserProofs(cCtx.Context, submitter)
					default:
						ids, err = c.UserProofs(cCtx.Context, c.Principal)
					}
					if err != nil {
						return err
					}
					return printJSON(ids)
				},
			},
			{
				Name:  "count",
				Usage: "Show the total number of accepted proofs",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					total, err := c.TotalProofs(cCtx.Context)
					if err != nil {
						return err
					}
					fmt.Println(total)
					return nil
				},
			},
			{
				Name:      "event",
				Usage:     "Show event metadata and whether the principal holds a valid proof for it",
				ArgsUsage: "<event-id>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					eventID := cCtx.Args().First()
					md, err := c.EventMetadata(cCtx.Context, eventID)
					if err != nil {
						return err
					}
					valid, err := c.HasValidProofForEvent(cCtx.Context, c.Principal, eventID)
					if err != nil {
						return err
					}
					return printJSON(struct {
						Metadata interfaces.EventMetadata `json:"metadata"`
						Valid    bool                     `json:"valid"`
					}{md, valid})
				},
			},
			{
				Name:      "status",
				Usage:     "Show the confirmation status of a submission",
				ArgsUsage: "<handle>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "refresh", Usage: "Poll the ledger before answering"},
				},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					handle, err := interfaces.NewSubmissionHandleFromHex(cCtx.Args().First())
					if err != nil {
						return fmt.Errorf("could not parse handle: %w", err)
					}
					var status interfaces.ConfirmationStatus
					if cCtx.Bool("refresh") {
						status, err = c.Refresh(cCtx.Context, handle)
					} else {
						status, err = c.Status(cCtx.Context, handle)
					}
					if err != nil {
						return err
					}
					return printJSON(status)
				},
			},
			{
				Name:      "wait",
				Usage:     "Wait for a submission to become final",
				ArgsUsage: "<handle>",
				Flags:     []cli.Flag{flagTimeout},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					handle, err := interfaces.NewSubmissionHandleFromHex(cCtx.Args().First())
					if err != nil {
						return fmt.Errorf("could not parse handle: %w", err)
					}
					return wait(cCtx, c, handle)
				},
			},
			{
				Name:      "wallet",
				Usage:     "List credentials owned by an address",
				ArgsUsage: "[owner]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "local", Usage: "List the server's stored credential copies instead"},
				},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					var credentials []interfaces.Credential
					if cCtx.Bool("local") {
						credentials, err = c.LocalWallet(cCtx.Context)
					} else {
						owner := c.Principal
						if cCtx.Args().Present() {
							owner, err = interfaces.NewPrincipalFromHex(cCtx.Args().First())
							if err != nil {
								return fmt.Errorf("could not parse owner: %w", err)
							}
						}
						credentials, err = c.WalletView(cCtx.Context, owner)
					}
					if err != nil {
						return err
					}
					return printJSON(credentials)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) (*clients.RegistryClient, error) {
	var principal interfaces.Principal
	if raw := cCtx.String(flags.PrincipalFlag.Name); raw != "" {
		var err error
		principal, err = interfaces.NewPrincipalFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("could not parse principal: %w", err)
		}
	}
	return clients.NewRegistryClient(cCtx.String(flagServerAddr.Name), principal), nil
}

func finish(cCtx *cli.Context, c *clients.RegistryClient, handle interfaces.SubmissionHandle) error {
	if !cCtx.Bool(flagWait.Name) {
		fmt.Println(handle.String())
		return nil
	}
	return wait(cCtx, c, handle)
}

func wait(cCtx *cli.Context, c *clients.RegistryClient, handle interfaces.SubmissionHandle) error {
	status, err := c.Wait(cCtx.Context, handle, cCtx.Duration(flagTimeout.Name))
	if err != nil {
		return err
	}
	if err := printJSON(status); err != nil {
		return err
	}
	if status.State == interfaces.StateFailed {
		return fmt.Errorf("submission failed: %s", status.FailureReason)
	}
	return nil
}

func parseProofID(s string) (interfaces.ProofID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid proof id %q", s)
	}
	return interfaces.ProofID(id), nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
