package sqlinline

const QEnsureCreditProfile = `--sql 6d719f21-3a73-4efa-a214-5e40ccc1fbe5
insert into credit_profiles (user_id, balance, opening_balance)
values ($1, $2, $2)
on conflict (user_id) do nothing;
`

const QGetCreditBalance = `--sql 494b5d09-2b56-43c7-a3c9-66b1de89d478
select balance
from credit_profiles
where user_id = $1;
`

const QLockCreditProfile = `--sql c7390c5a-0ae8-43bb-85fe-8e5bedf718fc
select balance
from credit_profiles
where user_id = $1
for update;
`

const QDebitCreditProfile = `--sql 1db73d73-7185-4efb-bbc3-34bb7e3c04cc
update credit_profiles
set balance = balance - $2, updated_at = now()
where user_id = $1 and balance >= $2
returning balance;
`

const QCreditCreditProfile = `--sql c4a7a10a-c60b-4563-8918-6b7697d2bee7
update credit_profiles
set balance = balance + $2, updated_at = now()
where user_id = $1
returning balance;
`

const QInsertCreditTransaction = `--sql 2899276d-dc2d-4521-83e1-38b9e15a7c50
insert into credit_transactions (id, user_id, amount, transaction_type, description, job_id, payment_id, balance_after)
values ($1, $2, $3, $4, $5, nullif($6, ''), nullif($7, ''), $8)
returning created_at;
`

const QJobOwner = `--sql 97d51684-8fd0-4f50-aabc-0e0bf99187b5
select user_id
from jobs
where id = $1;
`

const QRefundExists = `--sql b1751b22-c9f4-40e2-b881-996687efb0d4
select exists (
    select 1 from credit_transactions
    where job_id = $1 and transaction_type = 'refund'
);
`

const QPurchaseByPayment = `--sql c4b217e9-9bd1-407e-8bc8-538b880c5d3f
select user_id
from credit_transactions
where payment_id = $1 and transaction_type = 'purchase'
limit 1;
`

const QListCreditTransactions = `--sql c11545fc-d942-4a8a-8065-7b2d98d5abb4
select id, user_id, amount, transaction_type, description, coalesce(job_id, ''), coalesce(payment_id, ''), balance_after, created_at
from credit_transactions
where user_id = $1
order by created_at desc, id desc
limit $2;
`
