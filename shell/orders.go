package shell

import (
	"context"
	"flag"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/cpu/acmecore/acme/identifier"
)

func (s *Shell) registerOrderCommands() {
	s.AddCmd(&ishell.Cmd{
		Name:     "neworder",
		Aliases:  []string{"newOrder"},
		Help:     "Place a new order for one or more DNS/IP identifiers",
		LongHelp: "neworder <name1> [name2 ...]",
		Func:     s.newOrderHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name: "orders",
		Help: "List orders placed by the active account this session",
		Func: s.ordersHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "getorder",
		Aliases:  []string{"getOrder"},
		Help:     "Refresh and print an order by index",
		LongHelp: "getorder <index>",
		Func:     s.getOrderHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "finalize",
		Help:     "Finalize a ready order, building a CSR for its identifiers",
		LongHelp: "finalize <order index> -key <signing key name for the cert>",
		Func:     s.finalizeHandler,
	})
}

func (s *Shell) newOrderHandler(c *ishell.Context) {
	login := s.requireLogin(c)
	if login == nil {
		return
	}
	if len(c.Args) == 0 {
		c.Println("neworder: at least one identifier value is required")
		return
	}

	var idents []identifier.Identifier
	for _, name := range c.Args {
		id, err := identifier.DNS(name)
		if err != nil {
			if ip, ipErr := identifier.IP(name); ipErr == nil {
				id = ip
			} else {
				c.Printf("neworder: invalid identifier %q: %s\n", name, err)
				return
			}
		}
		idents = append(idents, id)
	}

	order, err := login.Account().NewOrder(context.Background(), idents, "", "", "")
	if err != nil {
		c.Printf("neworder: %s\n", err)
		return
	}
	s.orders[s.active] = append(s.orders[s.active], order)
	c.Printf("neworder: created order %s (status %s)\n", order.URL, order.Status)
}

func (s *Shell) ordersHandler(c *ishell.Context) {
	if s.active == "" {
		c.Println("orders: no active account")
		return
	}
	orders := s.orders[s.active]
	if len(orders) == 0 {
		c.Println("orders: the active account has no orders this session")
		return
	}
	for i, order := range orders {
		var names []string
		for _, id := range order.Identifiers {
			names = append(names, id.Value)
		}
		c.Printf("%3d) %-8s %s  %s\n", i, order.Status, strings.Join(names, ","), order.URL)
	}
}

func (s *Shell) orderByIndex(c *ishell.Context, indexArg string) *orderRef {
	if s.active == "" {
		c.Println("no active account")
		return nil
	}
	idx, err := strconv.Atoi(indexArg)
	if err != nil {
		c.Printf("%q is not a valid order index\n", indexArg)
		return nil
	}
	orders := s.orders[s.active]
	if idx < 0 || idx >= len(orders) {
		c.Printf("order index %d out of range (have %d orders)\n", idx, len(orders))
		return nil
	}
	return &orderRef{index: idx}
}

type orderRef struct{ index int }

func (s *Shell) getOrderHandler(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("getorder: an order index is required")
		return
	}
	ref := s.orderByIndex(c, c.Args[0])
	if ref == nil {
		return
	}
	order := s.orders[s.active][ref.index]
	if err := order.Update(context.Background()); err != nil {
		c.Printf("getorder: %s\n", err)
		return
	}
	c.Printf("order %s: status=%s expires=%s authorizations=%v\n",
		order.URL, order.Status, order.Expires.Format(time.RFC3339), order.AuthzURLs)
}

func (s *Shell) finalizeHandler(c *ishell.Context) {
	var keyName string
	fs := flag.NewFlagSet("finalize", flag.ContinueOnError)
	fs.StringVar(&keyName, "key", "", "signing key for the certificate (generated if omitted)")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	leftovers := fs.Args()
	if len(leftovers) != 1 {
		c.Println("finalize: an order index is required")
		return
	}
	ref := s.orderByIndex(c, leftovers[0])
	if ref == nil {
		return
	}
	order := s.orders[s.active][ref.index]

	certSigner := s.requireKey(c, keyName)
	if keyName != "" && certSigner == nil {
		return
	}
	if certSigner == nil {
		var err error
		certSigner, err = newDefaultCertKey()
		if err != nil {
			c.Printf("finalize: %s\n", err)
			return
		}
	}

	csrDER, err := buildCSR(order, certSigner)
	if err != nil {
		c.Printf("finalize: %s\n", err)
		return
	}
	if err := order.Execute(context.Background(), csrDER); err != nil {
		c.Printf("finalize: %s\n", err)
		return
	}
	c.Printf("finalize: order %s is now %s\n", order.URL, order.Status)
}
