// Command storefront is a terminal client for the storefront API: browse the
// catalog, log in and out, and manage the local cart.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/fairyhunter13/storefront-client/internal/api"
	"github.com/fairyhunter13/storefront-client/internal/apierr"
	"github.com/fairyhunter13/storefront-client/internal/cartsync"
	"github.com/fairyhunter13/storefront-client/internal/config"
	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/fairyhunter13/storefront-client/internal/obs"
	"github.com/fairyhunter13/storefront-client/internal/session"
	"github.com/fairyhunter13/storefront-client/internal/state"
	"github.com/fairyhunter13/storefront-client/internal/transport"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const usage = `usage: storefront <command> [arguments]

commands:
  products                         list the catalog
  product <id>                     show one product
  register -email -username -password
  login -email -password
  logout
  whoami
  cart [show]                      show the local cart
  cart add <id> [qty]
  cart update <id> <qty>           qty <= 0 removes the line
  cart remove <id>
  cart clear
  remote-cart                      show the server-side cart
`

var errUsage = errors.New("usage")

func main() {
	cfg := config.Load()
	obs.InitLoggerTo(os.Stderr, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "configuration:", err)
		return 2
	}
	c, err := newCLI(ctx, cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer c.close()

	err = c.dispatch(ctx, args[0], args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, usage)
		return 2
	default:
		fmt.Fprintln(stderr, apierr.MessageOf(err, err.Error()))
		obs.Logger.Debug("command_failed", "command", args[0], "kind", apierr.KindOf(err).String(), "error", err)
		return 1
	}
}

type cli struct {
	cfg     config.Config
	out     io.Writer
	errOut  io.Writer
	store   *session.Store
	closeFn func() error
	metrics *prometheus.Registry
	svc     *api.Services
	state   *state.Container
	syncer  *cartsync.Syncer
}

func newCLI(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) (*cli, error) {
	storage, closeFn, err := session.OpenStorage(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open session storage")
	}
	store := session.NewStore(storage)
	reg := prometheus.NewRegistry()
	metrics := obs.NewClientMetrics(reg)
	client := transport.New(transport.Options{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.RequestTimeout,
		Session:   store,
		LoginPath: cfg.LoginPath,
		OnUnauthorized: func(string) {
			fmt.Fprintln(stderr, "Votre session a expiré. Reconnectez-vous avec: storefront login -email <email> -password <mot de passe>")
		},
		Metrics:         metrics,
		RateLimit:       rate.Limit(cfg.RateLimitRPS),
		Burst:           cfg.RateLimitBurst,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
		Retry:           transport.RetryConfig{MaxRetries: cfg.RetryMax},
	})
	c := &cli{
		cfg:     cfg,
		out:     stdout,
		errOut:  stderr,
		store:   store,
		closeFn: closeFn,
		metrics: reg,
		svc:     api.New(client, store),
		state:   state.New(ctx, store, state.Options{PersistCart: cfg.PersistCart}),
	}
	if cfg.CartSync && c.state.IsAuthenticated() {
		c.syncer = cartsync.New(c.svc.Cart, cartsync.Options{Metrics: metrics})
		if err := c.syncer.Seed(ctx); err != nil {
			obs.Logger.Warn("cart_sync_seed_failed", "error", err)
		}
		c.syncer.Start(ctx)
		c.state.Subscribe(c.syncer.Handle)
	}
	return c, nil
}

// close flushes the cart mirror, logs the client metrics at debug level and
// releases the storage backend.
func (c *cli) close() {
	if c.syncer != nil {
		c.syncer.CloseIntake()
		ctx, cancel := context.WithTimeout(context.Background(), 2*c.cfg.RequestTimeout)
		if !c.syncer.DrainUntil(ctx) {
			fmt.Fprintln(c.errOut, "Synchronisation du panier incomplète")
		}
		cancel()
		c.syncer.Stop()
	}
	obs.LogMetrics(c.metrics)
	if err := c.closeFn(); err != nil {
		obs.Logger.Warn("session_storage_close_failed", "error", err)
	}
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "products":
		return c.products(ctx)
	case "product":
		if len(args) != 1 {
			return errUsage
		}
		return c.product(ctx, args[0])
	case "register":
		return c.register(ctx, args)
	case "login":
		return c.login(ctx, args)
	case "logout":
		c.state.Logout(ctx)
		fmt.Fprintln(c.out, "Déconnecté.")
		return nil
	case "whoami":
		return c.whoami()
	case "cart":
		return c.cart(ctx, args)
	case "remote-cart":
		return c.remoteCart(ctx)
	default:
		return errUsage
	}
}

func (c *cli) products(ctx context.Context) error {
	ps, err := c.svc.Products.ListAll(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOM\tPRIX\tSTOCK")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), stockLabel(p))
	}
	return tw.Flush()
}

func (c *cli) product(ctx context.Context, id string) error {
	p, err := c.svc.Products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s)\n%s\nPrix: %s\nStock: %s\n", p.Name, p.ID, p.Description, p.Price.StringFixed(2), stockLabel(p))
	return nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	email := fs.String("email", "", "account email")
	username := fs.String("username", "", "display name")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	res, err := c.svc.Auth.Register(ctx, model.Registration{Email: *email, Username: *username, Password: *password})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Compte créé pour %s. Connectez-vous avec: storefront login -email %s\n", res.User.Username, res.User.Email)
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	res, err := c.svc.Auth.Login(ctx, model.Credentials{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	c.state.SetUser(&res.User)
	fmt.Fprintf(c.out, "Connecté en tant que %s.\n", res.User.Username)
	return nil
}

func (c *cli) whoami() error {
	u := c.state.User()
	if u == nil {
		fmt.Fprintln(c.out, "Non connecté.")
		return nil
	}
	fmt.Fprintf(c.out, "%s <%s> (id %s)\n", u.Username, u.Email, u.ID)
	return nil
}

func (c *cli) cart(ctx context.Context, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "show":
	case "add":
		if len(args) < 1 || len(args) > 2 {
			return errUsage
		}
		qty := 1
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return errUsage
			}
			qty = n
		}
		p, err := c.svc.Products.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		c.state.AddToCart(ctx, p, qty)
	case "update":
		if len(args) != 2 {
			return errUsage
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return errUsage
		}
		c.state.UpdateQuantity(ctx, args[0], qty)
	case "remove":
		if len(args) != 1 {
			return errUsage
		}
		c.state.RemoveFromCart(ctx, args[0])
	case "clear":
		c.state.ClearCart(ctx)
	default:
		return errUsage
	}
	if sub != "show" && !c.cfg.PersistCart {
		fmt.Fprintln(c.errOut, "Panier non conservé entre deux commandes (PERSIST_CART=true pour le garder).")
	}
	return c.printCart()
}

func (c *cli) printCart() error {
	snap := c.state.Snapshot()
	if len(snap.Cart) == 0 {
		fmt.Fprintln(c.out, "Panier vide.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOM\tQTÉ\tPRIX\tSOUS-TOTAL")
	for _, it := range snap.Cart {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", it.ID, it.Name, it.Quantity, it.Price.StringFixed(2), it.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t%d\t\t%s\n", snap.ItemCount, snap.Total.StringFixed(2))
	return tw.Flush()
}

func (c *cli) remoteCart(ctx context.Context) error {
	rc, err := c.svc.Cart.GetCart(ctx)
	if err != nil {
		return err
	}
	if len(rc.Items) == 0 {
		fmt.Fprintln(c.out, "Panier distant vide.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LIGNE\tPRODUIT\tQTÉ")
	for _, it := range rc.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", it.ID, it.ProductID, it.Quantity)
	}
	return tw.Flush()
}

func stockLabel(p model.Product) string {
	if p.Stock == nil {
		return "-"
	}
	return strconv.Itoa(*p.Stock)
}
