package web

const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>fusiontrader</title>
<style>
body{font-family:ui-monospace,Menlo,monospace;background:#0f1115;color:#d6d9e0;margin:24px}
h1{font-size:18px;margin:0 0 16px}
table{border-collapse:collapse;width:100%;font-size:13px}
th,td{padding:6px 8px;border-bottom:1px solid #232733;text-align:left}
th{color:#8a90a0;font-weight:normal}
.BUY{color:#3fb950}.SELL{color:#f85149}.HOLD{color:#8a90a0}.CLOSE_ALL{color:#d29922}
#status{font-size:12px;color:#8a90a0;margin-bottom:12px}
</style>
</head>
<body>
<h1>fusiontrader decisions</h1>
<div id="status">connecting…</div>
<table>
<thead><tr><th>time</th><th>symbol</th><th>decision</th><th>lot</th><th>entry</th><th>sl</th><th>regime</th><th>mode</th><th>reason</th></tr></thead>
<tbody id="rows"></tbody>
</table>
<script>
const rows = document.getElementById('rows');
const statusEl = document.getElementById('status');
let lastId = 0;

function fmt(v, d){ return (v === null || v === undefined) ? '-' : Number(v).toFixed(d); }

function addDecision(d){
  const tr = document.createElement('tr');
  const cells = [
    new Date(d.ts).toLocaleString(), d.symbol, d.decision, fmt(d.lot, 2),
    fmt(d.entry, 5), fmt(d.sl, 5), d.regime || '-', d.mode || '-', d.reason || ''
  ];
  cells.forEach((c, i) => {
    const td = document.createElement('td');
    td.textContent = c;
    if (i === 2) td.className = d.decision;
    tr.appendChild(td);
  });
  rows.insertBefore(tr, rows.firstChild);
  while (rows.children.length > 200) rows.removeChild(rows.lastChild);
}

function connect(){
  const es = new EventSource('/decisions/stream?after=' + lastId);
  es.onopen = () => { statusEl.textContent = 'live'; };
  es.addEventListener('decision', ev => {
    lastId = Number(ev.lastEventId) || lastId;
    addDecision(JSON.parse(ev.data));
  });
  es.addEventListener('override', ev => {
    lastId = Number(ev.lastEventId) || lastId;
    statusEl.textContent = 'override applied ' + JSON.parse(ev.data).id;
  });
  es.onerror = () => {
    statusEl.textContent = 'disconnected, retrying…';
    es.close();
    setTimeout(connect, 3000);
  };
}
connect();
</script>
</body>
</html>
`
