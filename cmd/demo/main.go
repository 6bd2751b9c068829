package main

import (
	"context"
	"flag"

	"signal-sessions/codec"
	"signal-sessions/manager"
	"signal-sessions/prekeypool"

	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.New()
)

func main() {
	poolSize := flag.Int("pool-size", 10, "bundles kept in bob's pool")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := run(context.Background(), *poolSize); err != nil {
		logger.Fatalf("Demo failed: %v", err)
	}
}

func run(ctx context.Context, poolSize int) error {
	alice, err := manager.New("alice", manager.WithLogger(logger.WithField("user", "alice")))
	if err != nil {
		return err
	}
	bob, err := manager.New("bob", manager.WithLogger(logger.WithField("user", "bob")))
	if err != nil {
		return err
	}

	pool, err := prekeypool.New(bob,
		prekeypool.WithSize(poolSize),
		prekeypool.WithMinSize(poolSize/5),
		prekeypool.WithLogger(logger.WithField("user", "bob")),
	)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Initialize(ctx); err != nil {
		return err
	}

	// bob's bundle goes over the wire in its transport form
	bundle, err := pool.GetPreKeyBundle()
	if err != nil {
		return err
	}
	wire, err := codec.Marshal(bundle)
	if err != nil {
		return err
	}
	logger.Infof("Bob published a %d byte bundle", len(wire))

	received, err := codec.Unmarshal(wire)
	if err != nil {
		return err
	}
	if err := alice.ProcessPreKeyBundle(ctx, received, bob.Address()); err != nil {
		return err
	}

	ciphertext, err := alice.EncryptMessage(ctx, bob.Address(), []byte("hi"))
	if err != nil {
		return err
	}
	plaintext, err := bob.DecryptMessage(ctx, alice.Address(), ciphertext)
	if err != nil {
		return err
	}
	logger.Infof("Bob received %q", plaintext)

	reply, err := bob.EncryptMessage(ctx, alice.Address(), []byte("hello alice"))
	if err != nil {
		return err
	}
	plaintext, err = alice.DecryptMessage(ctx, bob.Address(), reply)
	if err != nil {
		return err
	}
	logger.Infof("Alice received %q", plaintext)

	for _, m := range []*manager.Manager{alice, bob} {
		fp, err := m.Fingerprint()
		if err != nil {
			return err
		}
		logger.Infof("%s fingerprint: %s", m.UserID(), fp)
	}
	return nil
}
